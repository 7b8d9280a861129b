package event

import (
	"encoding/binary"
	"testing"
)

func TestFieldType_Width(t *testing.T) {
	tests := []struct {
		typ  FieldType
		ptr  int
		want int
	}{
		{FieldInt32, 8, 4},
		{FieldBool, 8, 4},
		{FieldInt64, 4, 8},
		{FieldPointer, 4, 4},
		{FieldPointer, 8, 8},
		{FieldSize, 8, 8},
		{FieldType(0), 8, 0},
	}

	for _, tt := range tests {
		if got := tt.typ.Width(tt.ptr); got != tt.want {
			t.Errorf("%s.Width(%d) = %d, want %d", tt.typ, tt.ptr, got, tt.want)
		}
	}
}

func TestHeaderDescriptor_PayloadSize(t *testing.T) {
	for _, ptr := range []int{4, 8} {
		if got := HeaderDescriptor.PayloadSizeFor(ptr); got != HeaderPayloadSize {
			t.Errorf("PayloadSizeFor(%d) = %d, want %d", ptr, got, HeaderPayloadSize)
		}
	}
}

func TestHeaderDescriptor_MatchesAppendPayload(t *testing.T) {
	h := NativeHeader()
	little := uint64(0)
	if h.LittleEndian {
		little = 1
	}

	got, err := HeaderDescriptor.AppendPayload(nil, h.Check, uint64(h.Version), uint64(h.PointerSize), little)
	if err != nil {
		t.Fatal(err)
	}
	want := h.AppendPayload(nil)
	if string(got) != string(want) {
		t.Errorf("descriptor payload = %x, header payload = %x", got, want)
	}
}

func TestDescriptor_EncodeDecode(t *testing.T) {
	d := Descriptor{
		Kind: 9,
		Name: "world_stopping",
		Fields: []Field{
			{Name: "generation", Type: FieldInt32},
			{Name: "timestamp", Type: FieldInt64},
			{Name: "thread", Type: FieldPointer},
			{Name: "forced", Type: FieldBool},
		},
	}

	gen := int32(-1)
	p, err := d.AppendPayload([]byte{0xff}, uint64(int64(gen)), 123456789, 0xc000010000, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 1+d.PayloadSize() {
		t.Fatalf("len = %d, want %d", len(p), 1+d.PayloadSize())
	}

	fields, err := d.Decode(p[1:], binary.NativeEndian, NativePointerSize)
	if err != nil {
		t.Fatal(err)
	}
	want := []FieldValue{
		{Name: "generation", Value: uint64(int64(gen))},
		{Name: "timestamp", Value: 123456789},
		{Name: "thread", Value: 0xc000010000, Pointer: true},
		{Name: "forced", Value: 1},
	}
	if NativePointerSize == 4 {
		want[2].Value = 0x10000
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %+v, want %+v", i, fields[i], want[i])
		}
	}
}

func TestDescriptor_PutMatchesEncode(t *testing.T) {
	d := Descriptor{
		Kind: 13,
		Name: "alloc",
		Fields: []Field{
			{Name: "obj", Type: FieldPointer},
			{Name: "size", Type: FieldSize},
			{Name: "pinned", Type: FieldBool},
			{Name: "generation", Type: FieldInt32},
		},
	}
	values := []uint64{0xc000100000, 64, 3, 1}

	encoded := make([]byte, d.PayloadSize())
	if err := d.Encode(encoded, values); err != nil {
		t.Fatal(err)
	}

	// Put writes into a larger slot without touching bytes past the payload.
	slot := make([]byte, d.PayloadSize()+2)
	slot[len(slot)-1] = 0xaa
	d.Put(slot, values)

	if string(slot[:d.PayloadSize()]) != string(encoded) {
		t.Errorf("Put() = %x, want %x", slot[:d.PayloadSize()], encoded)
	}
	if slot[len(slot)-1] != 0xaa {
		t.Error("Put() wrote past the payload")
	}
}

func TestDescriptor_EncodeErrors(t *testing.T) {
	d := Descriptor{Name: "x", Fields: []Field{{Name: "a", Type: FieldInt32}}}

	if err := d.Encode(make([]byte, 4), nil); err == nil {
		t.Error("Encode() with missing values: error = nil")
	}
	if err := d.Encode(make([]byte, 3), []uint64{1}); err == nil {
		t.Error("Encode() with short buffer: error = nil")
	}

	dst, err := d.AppendPayload([]byte("keep"), 1, 2)
	if err == nil {
		t.Error("AppendPayload() with extra values: error = nil")
	}
	if string(dst) != "keep" {
		t.Errorf("AppendPayload() left %q after error", dst)
	}
}

func TestDescriptor_DecodeForeignLayout(t *testing.T) {
	d := Descriptor{Name: "pin", Fields: []Field{
		{Name: "obj", Type: FieldPointer},
		{Name: "size", Type: FieldSize},
	}}

	// 32-bit big endian writer.
	p := []byte{0x00, 0x01, 0x02, 0x03, 0x00, 0x00, 0x00, 0x10}
	fields, err := d.Decode(p, binary.BigEndian, 4)
	if err != nil {
		t.Fatal(err)
	}
	if fields[0].Value != 0x00010203 || !fields[0].Pointer {
		t.Errorf("obj = %+v", fields[0])
	}
	if fields[1].Value != 0x10 || fields[1].Pointer {
		t.Errorf("size = %+v", fields[1])
	}

	if _, err := d.Decode(p, binary.BigEndian, 8); err == nil {
		t.Error("Decode() with wrong pointer size: error = nil")
	}
}
