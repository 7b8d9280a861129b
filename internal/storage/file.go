// Package storage implements the live trace file sink, export writers and
// object storage uploaders.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/gctrace/internal/encoder"
	apperrors "github.com/jittakal/gctrace/internal/errors"
	"github.com/jittakal/gctrace/pkg/event"
	"github.com/jittakal/gctrace/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(backend string, format string, status string)
	ObserveFileSize(backend string, format string, size float64)
	ObserveStorageWriteDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// FileWriter implements storage.Writer for the local filesystem. It encodes
// decoded trace records into Avro or Parquet files.
type FileWriter struct {
	format         event.FileFormat
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
	fileSequence   int    // Sequence counter for files created in the same second
	lastTimestamp  string // Last timestamp used for filename generation
}

// NewFileWriter creates a new filesystem export writer.
func NewFileWriter(
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	encoderFactory := encoder.NewFactory(format, compression)

	// Validate encoder can be created
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger.Info("export writer created",
		"format", format,
		"compression", encoderFactory.Compression(),
	)

	return &FileWriter{
		format:         format,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records into a new file in dir.
// The file is named <source>_YYYYMMDD_HHMMSS_NNN.{ext} after the trace file
// the first record came from.
func (w *FileWriter) Write(ctx context.Context, records []event.Record, dir string) (string, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", 0, apperrors.ErrWriterClosed
	}
	if len(records) == 0 {
		return "", 0, fmt.Errorf("no records to write")
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	startTime := time.Now()

	fileEncoder, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.incError("encoder_create")
		return "", 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	dir = strings.TrimPrefix(dir, "file://")

	timestamp := startTime.Format("20060102_150405")
	if timestamp == w.lastTimestamp {
		w.fileSequence++
	} else {
		w.fileSequence = 1
		w.lastTimestamp = timestamp
	}

	base := "events"
	if records[0].Source != "" {
		base = filepath.Base(records[0].Source)
	}
	filename := fmt.Sprintf("%s_%s_%03d%s", base, timestamp, w.fileSequence, fileEncoder.FileExtension())
	fullPath := filepath.Join(dir, filename)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.incError("mkdir")
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}

	stats, err := fileEncoder.Encode(fullPath, records)
	if err != nil {
		w.incError("encode")
		return "", 0, fmt.Errorf("failed to encode records: %w", err)
	}

	duration := time.Since(startTime)

	w.logger.Info("wrote records to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", w.format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten("file", string(w.format), "success")
		w.metrics.ObserveFileSize("file", string(w.format), float64(stats.SizeBytes))
		w.metrics.ObserveStorageWriteDuration("file", duration.Seconds())
	}

	return fullPath, stats.SizeBytes, nil
}

func (w *FileWriter) incError(operation string) {
	if w.metrics != nil {
		w.metrics.IncStorageErrors("file", operation)
	}
}

// Close closes the writer. Later writes fail with ErrWriterClosed.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		w.logger.Info("closing export writer")
	}
	return nil
}

// formatLabel returns the metrics label for a file about to be uploaded.
func formatLabel(localPath string) string {
	name := strings.TrimSuffix(localPath, ".gz")
	switch {
	case strings.HasSuffix(name, ".avro"):
		return string(event.FormatAvro)
	case strings.HasSuffix(name, ".parquet"):
		return string(event.FormatParquet)
	default:
		return "trace"
	}
}

// contentType returns the object content type for a local file.
func contentType(localPath string) string {
	if formatLabel(localPath) == string(event.FormatAvro) {
		return "application/avro"
	}
	return "application/octet-stream"
}
