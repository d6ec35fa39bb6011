package msgpack

import (
	"reflect"
	"testing"
)

func TestDecodeScenarios(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want Value
	}{
		{"nil", []byte{0xc0}, Nil{}},
		{"true", []byte{0xc3}, Bool(true)},
		{"false", []byte{0xc2}, Bool(false)},
		{"posfixint", []byte{0x7f}, Int(127)},
		{"negfixint", []byte{0xe0}, Int(-32)},
		{"uint8", []byte{0xcc, 0x80}, Int(128)},
		{"uint16", []byte{0xcd, 0xff, 0xff}, Int(65535)},
		{"uint32", []byte{0xce, 0x00, 0x01, 0x00, 0x00}, Int(65536)},
		{"int8", []byte{0xd0, 0xdf}, Int(-33)},
		{"int16", []byte{0xd1, 0xff, 0x7f}, Int(-129)},
		{"float64", []byte{0xcb, 0x3f, 0xf8, 0, 0, 0, 0, 0, 0}, Float(1.5)},
		{"fixstr", []byte{0xa5, 0x48, 0x65, 0x6c, 0x6c, 0x6f}, Str("Hello")},
		{"fixarray", []byte{0x93, 0x01, 0x02, 0x03}, Array{Int(1), Int(2), Int(3)}},
		{"fixmap", []byte{0x81, 0xa2, 0x69, 0x64, 0x01}, Map{{Key: "id", Value: Int(1)}}},
		{"empty-str", []byte{0xa0}, Str("")},
		{"empty-array", []byte{0x90}, Array{}},
		{"empty-map", []byte{0x80}, Map{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			if err != nil {
				t.Fatalf("Decode(% x) failed: %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(% x) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeInvalidMarker(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	if err == nil {
		t.Fatal("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if decErr.Reason != ReasonInvalidTypeMarker {
		t.Errorf("Reason = %v, want %v", decErr.Reason, ReasonInvalidTypeMarker)
	}
	if decErr.Position != 0 {
		t.Errorf("Position = %d, want 0", decErr.Position)
	}
}

func TestDecodeUnexpectedEnd(t *testing.T) {
	// str8 marker claiming 5 bytes but providing none.
	_, err := Decode([]byte{0xd9, 0x05})
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decErr.Reason != ReasonUnexpectedEnd {
		t.Errorf("Reason = %v, want %v", decErr.Reason, ReasonUnexpectedEnd)
	}
	if decErr.Position != 2 {
		t.Errorf("Position = %d, want 2", decErr.Position)
	}
}

func TestDecodeMapKeyNotString(t *testing.T) {
	// fixmap with one pair whose key is an integer, not a string.
	data := []byte{0x81, 0x01, 0x02}
	_, err := Decode(data)
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decErr.Reason != ReasonMapKeyNotString {
		t.Errorf("Reason = %v, want %v", decErr.Reason, ReasonMapKeyNotString)
	}
	if decErr.Position != 1 {
		t.Errorf("Position = %d, want 1", decErr.Position)
	}
}

func TestDecodeTruncatedUTF8(t *testing.T) {
	// fixstr length 1 whose only payload byte is the lead byte of a 2-byte
	// sequence; the continuation byte falls outside the declared length.
	data := []byte{0xa1, 0xc2}
	_, err := Decode(data)
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decErr.Reason != ReasonInvalidUTF8 {
		t.Errorf("Reason = %v, want %v", decErr.Reason, ReasonInvalidUTF8)
	}
	if decErr.Position != 1 {
		t.Errorf("Position = %d, want 1", decErr.Position)
	}
}

func TestDecodeBinVsStrAreDistinct(t *testing.T) {
	strVal, err := Decode([]byte{0xa1, 0x41}) // fixstr "A"
	if err != nil {
		t.Fatal(err)
	}
	binVal, err := Decode([]byte{0xc4, 0x01, 0x41}) // bin8 [0x41]
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(strVal, binVal) {
		t.Errorf("Str and Bin decoded to equal values: %#v vs %#v", strVal, binVal)
	}
}

func TestDecodeDuplicateMapKeysLastWins(t *testing.T) {
	// fixmap{"a": 1, "a": 2}
	data := []byte{0x82, 0xa1, 0x61, 0x01, 0xa1, 0x61, 0x02}
	v, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	m := v.(Map)
	if len(m) != 1 {
		t.Fatalf("duplicate key should collapse to one entry, got %d entries", len(m))
	}
	val, ok := m.Get("a")
	if !ok {
		t.Fatal("key a not found")
	}
	if val != Int(2) {
		t.Errorf("Get returned %#v, want last occurrence Int(2)", val)
	}
}

func TestDecodeTrailingBytesIgnored(t *testing.T) {
	data := []byte{0xc0, 0xff, 0xff, 0xff} // nil followed by garbage
	v, err := Decode(data)
	if err != nil {
		t.Fatalf("trailing bytes should not cause an error: %v", err)
	}
	if _, ok := v.(Nil); !ok {
		t.Errorf("expected Nil, got %#v", v)
	}
}
