package tuple

import (
	"bytes"
	"sort"
	"testing"
)

func TestPackInt64RoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40)}
	for _, v := range cases {
		packed := PackInt64(v)
		if len(packed) != Int64Width {
			t.Fatalf("PackInt64(%d): got width %d, want %d", v, len(packed), Int64Width)
		}
		got, err := UnpackInt64(packed)
		if err != nil {
			t.Fatalf("UnpackInt64(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestPackInt64Orders(t *testing.T) {
	values := []int64{-100, -1, 0, 1, 100}
	packed := make([][]byte, len(values))
	for i, v := range values {
		packed[i] = PackInt64(v)
	}
	sorted := append([][]byte{}, packed...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	for i := range sorted {
		if !bytes.Equal(sorted[i], packed[i]) {
			t.Fatalf("byte order does not match numeric order of %v", values)
		}
	}
}

func TestUnpackInt64Shape(t *testing.T) {
	if _, err := UnpackInt64([]byte{0x15, 1, 2}); err != ErrShape {
		t.Errorf("expected ErrShape for short buffer, got %v", err)
	}
	bad := PackInt64(5)
	bad[0] = 0xff
	if _, err := UnpackInt64(bad); err != ErrShape {
		t.Errorf("expected ErrShape for wrong tag, got %v", err)
	}
}

func TestVersionstampRoundTrip(t *testing.T) {
	var stamp [12]byte
	for i := range stamp {
		stamp[i] = byte(i)
	}
	packed := PackVersionstamp(stamp)
	if len(packed) != VersionstampWidth {
		t.Fatalf("got width %d, want %d", len(packed), VersionstampWidth)
	}
	got, err := UnpackVersionstamp(packed)
	if err != nil {
		t.Fatalf("UnpackVersionstamp: %v", err)
	}
	if got != stamp {
		t.Errorf("round trip mismatch: got %v want %v", got, stamp)
	}
}

func TestVersionstampPlaceholderOffset(t *testing.T) {
	var placeholder [12]byte
	placeholder[10], placeholder[11] = 0xAB, 0xCD
	buf := PackVersionstampIncomplete(placeholder)
	if len(buf) != VersionstampWidthIncomplete {
		t.Fatalf("got width %d, want %d", len(buf), VersionstampWidthIncomplete)
	}
	offset, err := VersionstampPlaceholderOffset(buf)
	if err != nil {
		t.Fatalf("VersionstampPlaceholderOffset: %v", err)
	}
	if offset != 1 {
		t.Fatalf("expected offset 1 (right after the tag byte), got %d", offset)
	}
	if buf[offset+10] != 0xAB || buf[offset+11] != 0xCD {
		t.Fatalf("placeholder local bytes not at the reported offset")
	}
}

func TestVersionstampPlaceholderOffsetWrongWidth(t *testing.T) {
	if _, err := VersionstampPlaceholderOffset([]byte{1, 2, 3}); err != ErrShape {
		t.Errorf("expected ErrShape, got %v", err)
	}
}
