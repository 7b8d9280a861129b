package event

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// FieldType is the wire type of a payload field.
type FieldType uint8

const (
	FieldInt32 FieldType = iota + 1
	FieldInt64
	// FieldBool is encoded as a 4-byte integer, 0 or 1.
	FieldBool
	// FieldPointer and FieldSize use the pointer width of the writing process.
	FieldPointer
	FieldSize
)

// NativePointerSize is the pointer width of the running process in bytes.
const NativePointerSize = strconv.IntSize / 8

// Width returns the encoded size of the type for the given pointer width.
func (t FieldType) Width(pointerSize int) int {
	switch t {
	case FieldInt32, FieldBool:
		return 4
	case FieldInt64:
		return 8
	case FieldPointer, FieldSize:
		return pointerSize
	default:
		return 0
	}
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return t >= FieldInt32 && t <= FieldSize
}

func (t FieldType) String() string {
	switch t {
	case FieldInt32:
		return "int32"
	case FieldInt64:
		return "int64"
	case FieldBool:
		return "bool"
	case FieldPointer:
		return "pointer"
	case FieldSize:
		return "size"
	default:
		return "FieldType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Field is one named payload field.
type Field struct {
	Name string
	Type FieldType
}

// Descriptor describes the payload layout of one event kind.
type Descriptor struct {
	Kind   Kind
	Name   string
	Fields []Field
	// Flush requests an opportunistic flush right after the event is
	// emitted.
	Flush bool
	// Heavy marks per-object events that are only emitted when heavy
	// tracing is enabled.
	Heavy bool
}

// PayloadSize returns the native payload size in bytes.
func (d *Descriptor) PayloadSize() int {
	return d.PayloadSizeFor(NativePointerSize)
}

// PayloadSizeFor returns the payload size for a process with the given
// pointer width.
func (d *Descriptor) PayloadSizeFor(pointerSize int) int {
	n := 0
	for _, f := range d.Fields {
		n += f.Type.Width(pointerSize)
	}
	return n
}

// Encode writes values into dst in native byte order. dst must be exactly
// PayloadSize bytes and values must have one entry per field. Narrow types
// keep the low bits of their value; a bool is 1 for any non-zero value.
func (d *Descriptor) Encode(dst []byte, values []uint64) error {
	if len(values) != len(d.Fields) {
		return fmt.Errorf("%s: got %d values, want %d", d.Name, len(values), len(d.Fields))
	}
	if len(dst) != d.PayloadSize() {
		return fmt.Errorf("%s: payload buffer is %d bytes, want %d", d.Name, len(dst), d.PayloadSize())
	}
	d.Put(dst, values)
	return nil
}

// Put encodes values into dst without checking sizes. The caller must pass
// one value per field and a dst of at least PayloadSize bytes.
func (d *Descriptor) Put(dst []byte, values []uint64) {
	order := binary.NativeEndian
	off := 0
	for i, f := range d.Fields {
		v := values[i]
		switch f.Type {
		case FieldInt32:
			order.PutUint32(dst[off:], uint32(v))
		case FieldBool:
			var b uint32
			if v != 0 {
				b = 1
			}
			order.PutUint32(dst[off:], b)
		case FieldInt64:
			order.PutUint64(dst[off:], v)
		case FieldPointer, FieldSize:
			if NativePointerSize == 4 {
				order.PutUint32(dst[off:], uint32(v))
			} else {
				order.PutUint64(dst[off:], v)
			}
		}
		off += f.Type.Width(NativePointerSize)
	}
}

// AppendPayload appends the encoded payload to dst.
func (d *Descriptor) AppendPayload(dst []byte, values ...uint64) ([]byte, error) {
	n := len(dst)
	dst = append(dst, make([]byte, d.PayloadSize())...)
	if err := d.Encode(dst[n:], values); err != nil {
		return dst[:n], err
	}
	return dst, nil
}

// Decode splits a payload written by a process with the given byte order
// and pointer width into field values. int32 fields are sign-extended.
func (d *Descriptor) Decode(p []byte, order binary.ByteOrder, pointerSize int) ([]FieldValue, error) {
	if want := d.PayloadSizeFor(pointerSize); len(p) != want {
		return nil, fmt.Errorf("%s: payload is %d bytes, want %d", d.Name, len(p), want)
	}

	values := make([]FieldValue, len(d.Fields))
	off := 0
	for i, f := range d.Fields {
		w := f.Type.Width(pointerSize)
		var v uint64
		switch {
		case f.Type == FieldInt32:
			v = uint64(int64(int32(order.Uint32(p[off:]))))
		case w == 4:
			v = uint64(order.Uint32(p[off:]))
		default:
			v = order.Uint64(p[off:])
		}
		values[i] = FieldValue{Name: f.Name, Value: v, Pointer: f.Type == FieldPointer}
		off += w
	}
	return values, nil
}

// HeaderDescriptor describes the header record at the start of every file.
var HeaderDescriptor = Descriptor{
	Kind: KindHeader,
	Name: "header",
	Fields: []Field{
		{Name: "check", Type: FieldInt64},
		{Name: "version", Type: FieldInt32},
		{Name: "pointer_size", Type: FieldInt32},
		{Name: "little_endian", Type: FieldBool},
	},
}
