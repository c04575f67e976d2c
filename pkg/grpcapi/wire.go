package grpcapi

import (
	"encoding/binary"
	"fmt"
)

// packFields concatenates fields into a single buffer, each preceded by
// its 4-byte big-endian length, so a multi-field request or response can
// travel inside the single opaque payload a wrapperspb.BytesValue
// carries.
func packFields(fields ...[]byte) []byte {
	size := 0
	for _, f := range fields {
		size += 4 + len(f)
	}
	buf := make([]byte, size)
	off := 0
	for _, f := range fields {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(f)))
		off += 4
		copy(buf[off:], f)
		off += len(f)
	}
	return buf
}

// unpackFields reverses packFields, expecting exactly want fields.
func unpackFields(data []byte, want int) ([][]byte, error) {
	out := make([][]byte, 0, want)
	off := 0
	for len(out) < want {
		if off+4 > len(data) {
			return nil, fmt.Errorf("grpcapi: truncated field length at offset %d", off)
		}
		n := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if off+n > len(data) {
			return nil, fmt.Errorf("grpcapi: truncated field body at offset %d", off)
		}
		out = append(out, data[off:off+n])
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("grpcapi: %d trailing bytes after %d fields", len(data)-off, want)
	}
	return out, nil
}

func packUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func unpackUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("grpcapi: expected 4-byte uint32 field, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func packInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func unpackInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("grpcapi: expected 8-byte int64 field, got %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func unpackBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("grpcapi: expected 1-byte bool field, got %d bytes", len(b))
	}
	return b[0] != 0, nil
}
