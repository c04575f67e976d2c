package grpcapi

import "testing"

func TestPackUnpackFieldsRoundTrip(t *testing.T) {
	fields := [][]byte{[]byte("prefix/1/"), []byte("payload bytes"), {}}
	packed := packFields(fields...)
	got, err := unpackFields(packed, len(fields))
	if err != nil {
		t.Fatalf("unpackFields: %v", err)
	}
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i := range fields {
		if string(got[i]) != string(fields[i]) {
			t.Errorf("field %d: got %q, want %q", i, got[i], fields[i])
		}
	}
}

func TestUnpackFieldsTruncated(t *testing.T) {
	packed := packFields([]byte("a"), []byte("b"))
	_, err := unpackFields(packed[:len(packed)-1], 2)
	if err == nil {
		t.Fatalf("expected an error for a truncated buffer")
	}
}

func TestUnpackFieldsWrongCount(t *testing.T) {
	packed := packFields([]byte("a"), []byte("b"))
	_, err := unpackFields(packed, 1)
	if err == nil {
		t.Fatalf("expected an error when trailing bytes remain after the requested field count")
	}
}

func TestPackUnpackUint32(t *testing.T) {
	got, err := unpackUint32(packUint32(123456))
	if err != nil {
		t.Fatalf("unpackUint32: %v", err)
	}
	if got != 123456 {
		t.Errorf("got %d, want 123456", got)
	}
	if _, err := unpackUint32([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected an error for a wrong-width buffer")
	}
}

func TestPackUnpackInt64(t *testing.T) {
	got, err := unpackInt64(packInt64(-9000))
	if err != nil {
		t.Fatalf("unpackInt64: %v", err)
	}
	if got != -9000 {
		t.Errorf("got %d, want -9000", got)
	}
}

func TestBoolByteRoundTrip(t *testing.T) {
	got, err := unpackBool(boolByte(true))
	if err != nil || !got {
		t.Errorf("unpackBool(boolByte(true)) = (%v, %v), want (true, nil)", got, err)
	}
	got, err = unpackBool(boolByte(false))
	if err != nil || got {
		t.Errorf("unpackBool(boolByte(false)) = (%v, %v), want (false, nil)", got, err)
	}
}
