package event

import (
	"encoding/binary"
	"testing"
)

func TestNewTag(t *testing.T) {
	tests := []struct {
		name       string
		kind       Kind
		background bool
		want       Tag
	}{
		{name: "foreground", kind: 5, background: false, want: 0x05},
		{name: "background", kind: 5, background: true, want: 0x85},
		{name: "header", kind: KindHeader, background: false, want: 0x00},
		{name: "max kind", kind: MaxKind, background: true, want: 0xff},
		{name: "kind overflow is masked", kind: 0x81, background: false, want: 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTag(tt.kind, tt.background)
			if got != tt.want {
				t.Errorf("NewTag(%d, %v) = %#x, want %#x", tt.kind, tt.background, got, tt.want)
			}
			if got.Kind() != tt.kind&MaxKind {
				t.Errorf("Kind() = %d, want %d", got.Kind(), tt.kind&MaxKind)
			}
			if got.Background() != tt.background {
				t.Errorf("Background() = %v, want %v", got.Background(), tt.background)
			}
		})
	}
}

func TestNativeHeader(t *testing.T) {
	h := NativeHeader()

	if h.Check != HeaderCheck {
		t.Errorf("Check = %#x, want %#x", h.Check, HeaderCheck)
	}
	if h.Version != HeaderVersion {
		t.Errorf("Version = %d, want %d", h.Version, HeaderVersion)
	}
	if h.PointerSize != 4 && h.PointerSize != 8 {
		t.Errorf("PointerSize = %d, want 4 or 8", h.PointerSize)
	}

	payload := h.AppendPayload(nil)
	if len(payload) != HeaderPayloadSize {
		t.Fatalf("payload length = %d, want %d", len(payload), HeaderPayloadSize)
	}
	if got := binary.NativeEndian.Uint64(payload); got != HeaderCheck {
		t.Errorf("native header check = %#x, want %#x", got, HeaderCheck)
	}
}

func TestParseHeader(t *testing.T) {
	for _, little := range []bool{true, false} {
		h := Header{Check: HeaderCheck, Version: HeaderVersion, PointerSize: 8, LittleEndian: little}

		got, err := ParseHeader(h.AppendPayload(nil))
		if err != nil {
			t.Fatalf("ParseHeader(little=%v) error = %v", little, err)
		}
		if got != h {
			t.Errorf("ParseHeader(little=%v) = %+v, want %+v", little, got, h)
		}
	}
}

func TestHeader_AppendPayloadLayout(t *testing.T) {
	tests := []struct {
		name  string
		order binary.ByteOrder
		h     Header
	}{
		{"little endian", binary.LittleEndian, Header{Check: HeaderCheck, Version: HeaderVersion, PointerSize: 8, LittleEndian: true}},
		{"big endian", binary.BigEndian, Header{Check: HeaderCheck, Version: HeaderVersion, PointerSize: 4, LittleEndian: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix := []byte{byte(KindHeader)}
			p := tt.h.AppendPayload(prefix)
			if len(p) != 1+HeaderPayloadSize {
				t.Fatalf("len = %d, want %d", len(p), 1+HeaderPayloadSize)
			}
			if p[0] != byte(KindHeader) {
				t.Errorf("prefix overwritten: %#x", p[0])
			}
			p = p[1:]
			if got := tt.order.Uint64(p[0:8]); got != HeaderCheck {
				t.Errorf("check = %#x, want %#x", got, HeaderCheck)
			}
			if got := int32(tt.order.Uint32(p[8:12])); got != tt.h.Version {
				t.Errorf("version = %d, want %d", got, tt.h.Version)
			}
			if got := int32(tt.order.Uint32(p[12:16])); got != tt.h.PointerSize {
				t.Errorf("pointer size = %d, want %d", got, tt.h.PointerSize)
			}
			want := uint32(0)
			if tt.h.LittleEndian {
				want = 1
			}
			if got := tt.order.Uint32(p[16:20]); got != want {
				t.Errorf("little endian flag = %d, want %d", got, want)
			}
		})
	}
}

func TestParseHeader_Errors(t *testing.T) {
	good := Header{Check: HeaderCheck, Version: HeaderVersion, PointerSize: 8, LittleEndian: true}.AppendPayload(nil)

	badCheck := append([]byte(nil), good...)
	badCheck[0] ^= 0xff

	badFlag := append([]byte(nil), good...)
	badFlag[16] = 0

	tests := []struct {
		name    string
		payload []byte
	}{
		{"short", good[:10]},
		{"bad check", badCheck},
		{"byte order flag mismatch", badFlag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHeader(tt.payload); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRecord_Field(t *testing.T) {
	r := Record{
		Tag: NewTag(3, false),
		Fields: []FieldValue{
			{Name: "index", Value: 7},
			{Name: "generation", Value: 1},
		},
	}

	if v, ok := r.Field("generation"); !ok || v != 1 {
		t.Errorf("Field(generation) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := r.Field("missing"); ok {
		t.Error("Field(missing) should not be found")
	}
	if r.Kind() != 3 || r.Background() {
		t.Errorf("Kind/Background = %d/%v, want 3/false", r.Kind(), r.Background())
	}
}
