package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jittakal/gctrace/internal/decoder"
	"github.com/jittakal/gctrace/internal/encoder"
	"github.com/jittakal/gctrace/internal/observability"
	"github.com/jittakal/gctrace/internal/storage"
	"github.com/jittakal/gctrace/pkg/catalog"
	"github.com/jittakal/gctrace/pkg/event"
)

type exportOptions struct {
	format      event.FileFormat
	compression string
	outputDir   string
}

type exportResult struct {
	Source  string
	Output  string
	Records int
	Bytes   int64
}

// exportFiles decodes each trace file and writes its records to one
// analytics file in opts.outputDir.
func exportFiles(
	ctx context.Context,
	files []string,
	opts exportOptions,
	logger *slog.Logger,
	metrics storage.MetricsCollector,
) ([]exportResult, error) {
	writer, err := storage.NewFileWriter(opts.format, opts.compression, logger, metrics)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	exportedAt := time.Now().UTC()
	var results []exportResult
	header := event.NativeHeader()
	for _, path := range files {
		var records []event.Record
		header, records, err = decoder.ReadRotatedFile(path, catalog.Default(), header)
		if err != nil {
			return results, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(records) == 0 {
			logger.Info("skipping trace file without records", "path", path)
			continue
		}
		for i := range records {
			records[i].ExportedAt = exportedAt
		}

		out, size, err := writer.Write(ctx, records, opts.outputDir)
		if err != nil {
			return results, fmt.Errorf("failed to export %s: %w", path, err)
		}
		results = append(results, exportResult{
			Source:  path,
			Output:  out,
			Records: len(records),
			Bytes:   size,
		})
	}
	return results, nil
}

func newExportCommand(a *app) *cobra.Command {
	var (
		format      string
		compression string
		outputDir   string
	)

	exportCmd := &cobra.Command{
		Use:   "export [trace-path...]",
		Short: "Convert trace files to Avro or Parquet",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := exportOptions{
				compression: a.cfg.Export.Compression,
				outputDir:   a.cfg.Export.OutputDir,
			}
			if !cmd.Flags().Changed("format") {
				format = a.cfg.Export.Format
			} else if !cmd.Flags().Changed("compression") {
				opts.compression = ""
			}
			var err error
			if opts.format, err = encoder.ParseFormat(format); err != nil {
				return err
			}
			if cmd.Flags().Changed("compression") {
				opts.compression = compression
			}
			if cmd.Flags().Changed("output-dir") {
				opts.outputDir = outputDir
			}

			files, err := tracePaths(a, args)
			if err != nil {
				return err
			}

			metrics := observability.NewMetrics(prometheus.NewRegistry())
			results, err := exportFiles(cmd.Context(), files, opts, a.logger, metrics)
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d records, %d bytes)\n", r.Source, r.Output, r.Records, r.Bytes)
			}
			return err
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "parquet", "Output format: parquet|avro")
	exportCmd.Flags().StringVar(&compression, "compression", "", "Compression codec (default depends on format)")
	exportCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory for exported files")
	return exportCmd
}
