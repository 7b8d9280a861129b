// Package cmd contains the cobra commands of the gctrace CLI.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jittakal/gctrace/internal/config"
	"github.com/jittakal/gctrace/internal/config/dto"
	"github.com/jittakal/gctrace/internal/decoder"
	"github.com/jittakal/gctrace/internal/observability"
)

// app carries the configuration and logger shared by all subcommands. It is
// filled in by the root command's PersistentPreRunE.
type app struct {
	configPath string
	cfg        *dto.ApplicationConfig
	logger     *slog.Logger
}

func (a *app) load() error {
	cfg, err := config.NewLoader().Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	logging := cfg.Observability.Logging
	a.logger = observability.NewLogger(observability.LoggingConfig{
		Level:  logging.Level,
		Format: logging.Format,
		Output: logging.Output,
		File: observability.LogFileConfig{
			Path:       logging.File.Path,
			MaxSizeMB:  logging.File.MaxSizeMB,
			MaxBackups: logging.File.MaxBackups,
			MaxAgeDays: logging.File.MaxAgeDays,
			Compress:   logging.File.Compress,
		},
	})
	return nil
}

// NewRoot constructs the root gctrace command and registers all
// subcommands.
func NewRoot(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "gctrace",
		Short:         "Garbage collector binary event tracer",
		Long:          "gctrace records, inspects, exports and archives binary garbage collector trace files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to configuration file (YAML)")

	root.AddCommand(
		newDumpCommand(a),
		newExportCommand(a),
		newArchiveCommand(a),
		newStressCommand(a),
		newVersionCommand(version),
	)
	return root
}

// tracePaths returns the trace files named by args, or the configured trace
// path when args is empty. Rotated files are expanded in rotation order.
func tracePaths(a *app, args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{a.cfg.Tracer.Path}
	}

	var files []string
	for _, arg := range args {
		expanded, err := decoder.Files(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no trace files found for %v", args)
	}
	return files, nil
}
