package encoder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jittakal/gctrace/pkg/encoder"
	"github.com/jittakal/gctrace/pkg/event"
)

// Factory creates export encoders for one format and codec. It is shared by
// every file an export run writes.
type Factory struct {
	format      event.FileFormat
	compression string
}

// NewFactory creates an encoder factory. An empty compression selects the
// format's default codec.
func NewFactory(format event.FileFormat, compression string) *Factory {
	compression = strings.ToLower(strings.TrimSpace(compression))
	if compression == "" {
		compression = DefaultCompression(format)
	}
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// Format returns the export format.
func (f *Factory) Format() event.FileFormat {
	return f.format
}

// Compression returns the codec the encoders use.
func (f *Factory) Compression() string {
	return f.compression
}

// Validate checks that the format is supported and that the codec can be
// used with it.
func (f *Factory) Validate() error {
	if !slices.Contains(SupportedFormats(), f.format) {
		return fmt.Errorf("unsupported export format: %q (supported: %s)", f.format, joinFormats(SupportedFormats()))
	}
	codecs := SupportedCompressions(f.format)
	if !slices.Contains(codecs, f.compression) {
		return fmt.Errorf("unsupported %s compression: %q (supported: %s)",
			f.format, f.compression, strings.Join(codecs, ", "))
	}
	return nil
}

// CreateEncoder creates an encoder for the configured format and codec.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.format {
	case event.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	default:
		return NewAvroEncoder(f.compression)
	}
}

// ParseFormat resolves a format name from a flag or config value.
func ParseFormat(s string) (event.FileFormat, error) {
	format := event.FileFormat(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(SupportedFormats(), format) {
		return "", fmt.Errorf("unsupported export format: %q (supported: %s)", s, joinFormats(SupportedFormats()))
	}
	return format, nil
}

// SupportedFormats returns the export formats.
func SupportedFormats() []event.FileFormat {
	return []event.FileFormat{
		event.FormatParquet,
		event.FormatAvro,
	}
}

// SupportedCompressions returns the codecs usable with format. Avro OCF
// files are written whole and optionally gzipped; Parquet compresses per
// column chunk.
func SupportedCompressions(format event.FileFormat) []string {
	switch format {
	case event.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case event.FormatAvro:
		return []string{"uncompressed", "gzip"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the codec used when none is configured.
func DefaultCompression(format event.FileFormat) string {
	switch format {
	case event.FormatParquet:
		return "snappy"
	case event.FormatAvro:
		return "gzip"
	default:
		return "uncompressed"
	}
}

func joinFormats(formats []event.FileFormat) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
