// Package event defines the binary record types shared by the tracer, the
// decoder and the offline tools.
//
// A log file is a header record followed by a contiguous stream of
// {tag, payload} records. The payload length of a record is not stored in the
// file; it is implied by the event kind and looked up in a catalog.
package event

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies an event type. Only the low seven bits are usable.
type Kind uint8

// MaxKind is the largest kind that fits in a tag.
const MaxKind Kind = 0x7f

// KindHeader is reserved for the header record that starts every log file.
const KindHeader Kind = 0

// Tag is the first byte of every record.
type Tag uint8

// backgroundBit marks records emitted from a collector worker thread.
const backgroundBit Tag = 0x80

// NewTag builds the tag byte for kind. Bits above MaxKind in kind are dropped.
func NewTag(kind Kind, background bool) Tag {
	t := Tag(kind & MaxKind)
	if background {
		t |= backgroundBit
	}
	return t
}

// Kind returns the event kind encoded in the tag.
func (t Tag) Kind() Kind {
	return Kind(t) & MaxKind
}

// Background reports whether the record was emitted by a background thread.
func (t Tag) Background() bool {
	return t&backgroundBit != 0
}

// String returns a short representation such as "12" or "12/bg".
func (t Tag) String() string {
	s := strconv.Itoa(int(t.Kind()))
	if t.Background() {
		s += "/bg"
	}
	return s
}

const (
	// HeaderCheck is the constant that opens every header payload. Readers use
	// it to detect the byte order of the file.
	HeaderCheck uint64 = 0xde7ec7ab1ec0de

	// HeaderVersion is the format version written by this package.
	HeaderVersion int32 = 2

	// HeaderPayloadSize is the size of an encoded header payload.
	HeaderPayloadSize = 8 + 4 + 4 + 4
)

// Header describes the process that produced a log file.
type Header struct {
	Check        uint64
	Version      int32
	PointerSize  int32
	LittleEndian bool
}

// NativeHeader returns the header for the running process.
func NativeHeader() Header {
	return Header{
		Check:        HeaderCheck,
		Version:      HeaderVersion,
		PointerSize:  int32(strconv.IntSize / 8),
		LittleEndian: IsLittleEndian(),
	}
}

// IsLittleEndian reports whether the host byte order is little endian.
func IsLittleEndian() bool {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	return probe[0] == 1
}

// ByteOrder returns the byte order the header was written in.
func (h Header) ByteOrder() binary.ByteOrder {
	if h.LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// AppendPayload appends the header payload to dst in the header's byte order.
func (h Header) AppendPayload(dst []byte) []byte {
	var order binary.AppendByteOrder = binary.BigEndian
	if h.LittleEndian {
		order = binary.LittleEndian
	}
	var little int32
	if h.LittleEndian {
		little = 1
	}
	dst = order.AppendUint64(dst, h.Check)
	dst = order.AppendUint32(dst, uint32(h.Version))
	dst = order.AppendUint32(dst, uint32(h.PointerSize))
	dst = order.AppendUint32(dst, uint32(little))
	return dst
}

// ParseHeader decodes a header payload. The byte order is detected from the
// check constant; the payload must be HeaderPayloadSize bytes long.
func ParseHeader(p []byte) (Header, error) {
	if len(p) != HeaderPayloadSize {
		return Header{}, fmt.Errorf("header payload is %d bytes, want %d", len(p), HeaderPayloadSize)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint64(p) == HeaderCheck:
		order = binary.LittleEndian
	case binary.BigEndian.Uint64(p) == HeaderCheck:
		order = binary.BigEndian
	default:
		return Header{}, fmt.Errorf("header check mismatch: %#x", binary.LittleEndian.Uint64(p))
	}

	h := Header{
		Check:       order.Uint64(p[0:8]),
		Version:     int32(order.Uint32(p[8:12])),
		PointerSize: int32(order.Uint32(p[12:16])),
	}
	h.LittleEndian = order == binary.LittleEndian

	if declared := order.Uint32(p[16:20]) != 0; declared != h.LittleEndian {
		return Header{}, fmt.Errorf("header byte order flag disagrees with check constant")
	}
	return h, nil
}

// FieldValue is one decoded payload field.
type FieldValue struct {
	Name    string
	Value   uint64
	Pointer bool
}

// Record is a decoded log record.
type Record struct {
	// Source is the file the record was read from.
	Source     string
	Offset     int64
	Tag        Tag
	Name       string
	Fields     []FieldValue
	Payload    []byte
	ExportedAt time.Time
}

// Kind returns the record's event kind.
func (r *Record) Kind() Kind {
	return r.Tag.Kind()
}

// Background reports whether the record came from a background thread.
func (r *Record) Background() bool {
	return r.Tag.Background()
}

// Field returns the value of the named field.
func (r *Record) Field(name string) (uint64, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// FileStats contains statistics about a written file.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// FileFormat represents an export file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)
