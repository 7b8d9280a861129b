package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/jittakal/gctrace/internal/errors"
	"github.com/jittakal/gctrace/pkg/event"
)

// mockMetricsCollector implements MetricsCollector for testing
type mockMetricsCollector struct {
	filesWritten       int
	fileSizes          []float64
	storageDurations   []float64
	storageErrors      int
	lastFileStatus     string
	lastBackend        string
	lastFormat         string
	lastErrorBackend   string
	lastErrorOperation string
}

func (m *mockMetricsCollector) IncFilesWritten(backend string, format string, status string) {
	m.filesWritten++
	m.lastBackend = backend
	m.lastFormat = format
	m.lastFileStatus = status
}

func (m *mockMetricsCollector) ObserveFileSize(backend string, format string, size float64) {
	m.fileSizes = append(m.fileSizes, size)
}

func (m *mockMetricsCollector) ObserveStorageWriteDuration(backend string, duration float64) {
	m.storageDurations = append(m.storageDurations, duration)
}

func (m *mockMetricsCollector) IncStorageErrors(backend string, operation string) {
	m.storageErrors++
	m.lastErrorBackend = backend
	m.lastErrorOperation = operation
}

func testRecords(source string, n int) []event.Record {
	now := time.Now()
	records := make([]event.Record, n)
	for i := range records {
		records[i] = event.Record{
			Source: source,
			Offset: int64(21 + i*9),
			Tag:    event.NewTag(2, i%2 == 1),
			Name:   "collection_begin",
			Fields: []event.FieldValue{
				{Name: "index", Value: uint64(i)},
				{Name: "generation", Value: 1},
			},
			ExportedAt: now,
		}
	}
	return records
}

func TestNewFileWriter(t *testing.T) {
	tests := []struct {
		name        string
		format      event.FileFormat
		compression string
		wantErr     bool
	}{
		{"valid parquet config", event.FormatParquet, "snappy", false},
		{"valid avro config", event.FormatAvro, "gzip", false},
		{"default codec", event.FormatAvro, "", false},
		{"codec not usable with format", event.FormatAvro, "snappy", true},
		{"unsupported format", event.FileFormat("csv"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

			writer, err := NewFileWriter(tt.format, tt.compression, logger, &mockMetricsCollector{})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFileWriter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && writer.format != tt.format {
				t.Errorf("format = %v, want %v", writer.format, tt.format)
			}
		})
	}
}

func TestFileWriter_Write(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	metrics := &mockMetricsCollector{}

	writer, err := NewFileWriter(event.FormatParquet, "snappy", logger, metrics)
	if err != nil {
		t.Fatalf("NewFileWriter() failed: %v", err)
	}
	defer writer.Close()

	path, size, err := writer.Write(context.Background(), testRecords("/var/tmp/trace.log.2", 10), "file://"+dir)
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if size <= 0 {
		t.Errorf("size = %d, want > 0", size)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("file written to %s, want dir %s", path, dir)
	}
	if !strings.HasPrefix(filepath.Base(path), "trace.log.2_") || !strings.HasSuffix(path, ".parquet") {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("written file missing: %v", err)
	}

	if metrics.filesWritten != 1 {
		t.Errorf("filesWritten = %d, want 1", metrics.filesWritten)
	}
	if metrics.lastBackend != "file" || metrics.lastFormat != "parquet" || metrics.lastFileStatus != "success" {
		t.Errorf("metrics labels = %s/%s/%s", metrics.lastBackend, metrics.lastFormat, metrics.lastFileStatus)
	}
}

func TestFileWriter_WriteSequence(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	writer, err := NewFileWriter(event.FormatAvro, "uncompressed", logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		path, _, err := writer.Write(context.Background(), testRecords("trace.log", 2), dir)
		if err != nil {
			t.Fatalf("Write() #%d failed: %v", i, err)
		}
		if seen[path] {
			t.Errorf("Write() reused file name %s", path)
		}
		seen[path] = true
	}
}

func TestFileWriter_WriteErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	writer, err := NewFileWriter(event.FormatAvro, "gzip", logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := writer.Write(context.Background(), nil, t.TempDir()); err == nil {
		t.Error("Write() with no records: error = nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := writer.Write(ctx, testRecords("trace.log", 1), t.TempDir()); err == nil {
		t.Error("Write() with cancelled context: error = nil")
	}
}

func TestFileWriter_Close(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	writer, err := NewFileWriter(event.FormatParquet, "snappy", logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	_, _, err = writer.Write(context.Background(), testRecords("trace.log", 1), t.TempDir())
	if !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}
}

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
		ct   string
	}{
		{"out/trace.log_1.avro", "avro", "application/avro"},
		{"out/trace.log_1.avro.gz", "avro", "application/avro"},
		{"out/trace.log_1.parquet", "parquet", "application/octet-stream"},
		{"/tmp/trace.log.3", "trace", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := formatLabel(tt.path); got != tt.want {
			t.Errorf("formatLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
		if got := contentType(tt.path); got != tt.ct {
			t.Errorf("contentType(%q) = %q, want %q", tt.path, got, tt.ct)
		}
	}
}
