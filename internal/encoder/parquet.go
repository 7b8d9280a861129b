package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/gctrace/pkg/encoder"
	"github.com/jittakal/gctrace/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// TraceRecordParquet is the Parquet row of one decoded trace record.
type TraceRecordParquet struct {
	Source     string    `parquet:"source,dict"`
	Offset     int64     `parquet:"offset"`
	Kind       int32     `parquet:"kind"`
	Name       string    `parquet:"name,dict"`
	Background bool      `parquet:"background"`
	Fields     string    `parquet:"fields"`
	ExportedAt time.Time `parquet:"exported_at,timestamp(microsecond)"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar
// format. Supports SNAPPY (default), GZIP, LZ4, ZSTD and no compression.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "snappy", "SNAPPY":
		return parquet.Compression(&parquet.Snappy)
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes records to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, records []event.Record) (*event.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	rows := make([]TraceRecordParquet, len(records))
	for i, record := range records {
		row, err := e.convertToParquetRecord(record)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record %d: %w", i, err)
		}
		rows[i] = row
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	writer := parquet.NewGenericWriter[TraceRecordParquet](
		file,
		parquet.SchemaOf(new(TraceRecordParquet)),
		compressionCodec(e.compressionName),
		parquet.CreatedBy("gctrace", "1.0", "0"),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	// Close file before getting stats to ensure all data is flushed
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	now := time.Now()
	return &event.FileStats{
		RecordCount:    len(records),
		SizeBytes:      fileInfo.Size(),
		FirstWriteTime: now,
		LastWriteTime:  now,
	}, nil
}

// convertToParquetRecord converts a Record to its Parquet row.
func (e *ParquetEncoder) convertToParquetRecord(record event.Record) (TraceRecordParquet, error) {
	fields, err := fieldsJSON(record)
	if err != nil {
		return TraceRecordParquet{}, err
	}

	return TraceRecordParquet{
		Source:     record.Source,
		Offset:     record.Offset,
		Kind:       int32(record.Kind()),
		Name:       record.Name,
		Background: record.Background(),
		Fields:     fields,
		ExportedAt: exportedAt(record),
	}, nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() event.FileFormat {
	return event.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
