package encoder

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/gctrace/pkg/event"
)

func TestNewAvroEncoder(t *testing.T) {
	tests := []struct {
		name        string
		compression string
	}{
		{"gzip compression", "gzip"},
		{"uncompressed", "uncompressed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewAvroEncoder(tt.compression)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}
			if encoder.codec == nil {
				t.Error("expected non-nil codec")
			}
			if encoder.compression != tt.compression {
				t.Errorf("compression = %v, want %v", encoder.compression, tt.compression)
			}
		})
	}
}

func TestAvroEncoder_FileExtension(t *testing.T) {
	tests := []struct {
		compression string
		want        string
	}{
		{"gzip", ".avro.gz"},
		{"GZIP", ".avro.gz"},
		{"uncompressed", ".avro"},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			encoder, err := NewAvroEncoder(tt.compression)
			if err != nil {
				t.Fatal(err)
			}
			if got := encoder.FileExtension(); got != tt.want {
				t.Errorf("FileExtension() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvroEncoder_Format(t *testing.T) {
	encoder, err := NewAvroEncoder("gzip")
	if err != nil {
		t.Fatal(err)
	}
	if encoder.Format() != event.FormatAvro {
		t.Errorf("Format() = %v, want %v", encoder.Format(), event.FormatAvro)
	}
}

func TestAvroEncoder_Encode(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.avro.gz")

	encoder, err := NewAvroEncoder("gzip")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}

	records := sampleRecords(2)
	stats, err := encoder.Encode(testFile, records)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if stats.RecordCount != len(records) {
		t.Errorf("RecordCount = %d, want %d", stats.RecordCount, len(records))
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", stats.SizeBytes)
	}

	f, err := os.Open(testFile)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("output is not gzip: %v", err)
	}
	if got := readOCF(t, gz); len(got) != 2 {
		t.Errorf("read %d records, want 2", len(got))
	}
}

func TestAvroEncoder_EncodeUncompressedRoundTrip(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.avro")

	encoder, err := NewAvroEncoder("uncompressed")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := encoder.Encode(testFile, sampleRecords(3)); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	f, err := os.Open(testFile)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows := readOCF(t, f)
	if len(rows) != 3 {
		t.Fatalf("read %d records, want 3", len(rows))
	}

	row := rows[1]
	if row["name"] != "collection_end" {
		t.Errorf("name = %v", row["name"])
	}
	if row["kind"] != int32(3) {
		t.Errorf("kind = %v (%T)", row["kind"], row["kind"])
	}
	if row["background"] != true {
		t.Errorf("background = %v, want true", row["background"])
	}
	if row["offset"] != int64(46) {
		t.Errorf("offset = %v", row["offset"])
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(row["fields"].(string)), &fields); err != nil {
		t.Fatalf("fields is not JSON: %v", err)
	}
	if fields["major_scan"] != float64(1200) {
		t.Errorf("fields[major_scan] = %v", fields["major_scan"])
	}

	ts, err := time.Parse(time.RFC3339Nano, row["exported_at"].(string))
	if err != nil || ts.Year() != 2026 {
		t.Errorf("exported_at = %v, %v", row["exported_at"], err)
	}
}

func readOCF(t *testing.T, r io.Reader) []map[string]interface{} {
	t.Helper()
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		t.Fatalf("NewOCFReader() error = %v", err)
	}
	var rows []map[string]interface{}
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		rows = append(rows, datum.(map[string]interface{}))
	}
	if err := ocf.Err(); err != nil {
		t.Fatalf("scan error = %v", err)
	}
	return rows
}

func TestAvroEncoder_EncodeEmptyRecords(t *testing.T) {
	encoder, err := NewAvroEncoder("gzip")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := encoder.Encode(filepath.Join(t.TempDir(), "empty.avro"), []event.Record{}); err == nil {
		t.Error("expected error for empty records")
	}
	if _, err := encoder.EncodeToBytes(nil); err == nil {
		t.Error("expected error for empty records")
	}
}

func TestAvroEncoder_EncodeToBytes(t *testing.T) {
	encoder, err := NewAvroEncoder("uncompressed")
	if err != nil {
		t.Fatal(err)
	}

	data, err := encoder.EncodeToBytes(sampleRecords(5))
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("Obj\x01")) {
		t.Errorf("missing OCF magic: %q", data[:4])
	}
	if got := readOCF(t, bytes.NewReader(data)); len(got) != 5 {
		t.Errorf("read %d records, want 5", len(got))
	}
}

func TestGetAvroSchema(t *testing.T) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(avroSchema()), &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	fields := schema["fields"].([]any)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.(map[string]any)["name"].(string)
	}
	want := []string{"source", "offset", "kind", "name", "background", "fields", "exported_at"}
	if len(names) != len(want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("field %d = %s, want %s", i, names[i], want[i])
		}
	}
}
