package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/gctrace/internal/config/dto"
	"github.com/jittakal/gctrace/internal/encoder"
)

// EnvPrefix is the prefix of environment variables that override file
// settings, e.g. GCTRACE_TRACER_PATH.
const EnvPrefix = "GCTRACE"

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying viper instance so commands can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing a ${...} reference
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "gctrace")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Tracer defaults
	l.v.SetDefault("tracer.path", "gc.trace")
	l.v.SetDefault("tracer.size_limit_bytes", 0)
	l.v.SetDefault("tracer.heavy", false)
	l.v.SetDefault("tracer.flush_interval_ms", 1000)

	// Export defaults
	l.v.SetDefault("export.format", "parquet")
	l.v.SetDefault("export.compression", "")
	l.v.SetDefault("export.output_dir", ".")

	// Archive defaults
	l.v.SetDefault("archive.backend", "")
	l.v.SetDefault("archive.base_path", "gctrace")
	l.v.SetDefault("archive.delete_after_upload", false)
	l.v.SetDefault("archive.s3.use_path_style", false)
	l.v.SetDefault("archive.s3.sse_enabled", true)
	l.v.SetDefault("archive.gcs.use_default_credential", true)

	// Stress defaults
	l.v.SetDefault("stress.workers", 4)
	l.v.SetDefault("stress.duration_seconds", 10)
	l.v.SetDefault("stress.stop_the_world_interval_ms", 250)
	l.v.SetDefault("stress.seed", 0)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stderr")
	l.v.SetDefault("observability.logging.file.max_size_mb", 100)
	l.v.SetDefault("observability.logging.file.max_backups", 3)
	l.v.SetDefault("observability.logging.file.max_age_days", 7)
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	if config.Tracer.FlushIntervalMS < 0 {
		return fmt.Errorf("invalid tracer flush interval: %dms", config.Tracer.FlushIntervalMS)
	}

	// Export format and codec
	format, err := encoder.ParseFormat(config.Export.Format)
	if err != nil {
		return err
	}
	if err := encoder.NewFactory(format, config.Export.Compression).Validate(); err != nil {
		return err
	}

	// Archive validation, only when a backend is selected
	switch config.Archive.Backend {
	case "":
	case "s3":
		if err := config.Archive.S3.Validate(); err != nil {
			return err
		}
	case "azure":
		if err := config.Archive.Azure.Validate(); err != nil {
			return err
		}
	case "gcs":
		if err := config.Archive.GCS.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported archive backend: %s", config.Archive.Backend)
	}

	if config.Stress.Workers < 1 {
		return fmt.Errorf("invalid stress workers: %d", config.Stress.Workers)
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
