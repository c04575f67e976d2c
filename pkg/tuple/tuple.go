// Package tuple implements the small, order-preserving byte encoding that
// the record split codec needs for its key suffixes and version values. It
// is not a general structured-value tuple layer (that collaborator lives
// outside this module, per the record layer's scope); it only packs the two
// shapes the codec actually puts on the wire: a signed 64-bit suffix and a
// 12-byte version stamp.
package tuple

import (
	"encoding/binary"
	"errors"
)

// ErrShape is returned when a packed element does not have the expected
// tag byte or length for its kind.
var ErrShape = errors.New("tuple: unexpected element shape")

const (
	tagInt64        byte = 0x15
	tagVersionstamp byte = 0x33

	// Int64Width is the total width, in bytes, of a packed signed 64-bit
	// suffix element: one tag byte plus eight magnitude bytes.
	Int64Width = 9

	// VersionstampWidth is the width of a packed, complete version element.
	VersionstampWidth = 1 + 12

	// VersionstampWidthIncomplete is the width of a packed, incomplete
	// version element, including its non-durable 4-byte offset tail.
	VersionstampWidthIncomplete = VersionstampWidth + 4
)

// signBit flips the sign bit of a two's-complement int64 so that unsigned,
// big-endian byte comparison matches signed numeric comparison. This is the
// same trick used throughout ordered key-value stores to make negative
// numbers sort before zero and zero sort before positive numbers.
const signBit = uint64(1) << 63

// PackInt64 encodes v as a fixed-width, order-preserving element.
func PackInt64(v int64) []byte {
	buf := make([]byte, Int64Width)
	buf[0] = tagInt64
	binary.BigEndian.PutUint64(buf[1:], uint64(v)^signBit)
	return buf
}

// UnpackInt64 decodes an element produced by PackInt64. It fails if b is
// not exactly Int64Width bytes or does not carry the int64 tag, which is
// how the codec detects a suffix with more than one tuple element (a
// SubkeyShapeViolation in the caller's terms).
func UnpackInt64(b []byte) (int64, error) {
	if len(b) != Int64Width || b[0] != tagInt64 {
		return 0, ErrShape
	}
	u := binary.BigEndian.Uint64(b[1:])
	return int64(u ^ signBit), nil
}

// PackVersionstamp encodes a complete, durable 12-byte version stamp.
func PackVersionstamp(stamp [12]byte) []byte {
	buf := make([]byte, VersionstampWidth)
	buf[0] = tagVersionstamp
	copy(buf[1:], stamp[:])
	return buf
}

// PackVersionstampIncomplete encodes a version stamp whose first 10 bytes
// are a placeholder to be filled in by the store at commit time, plus a
// trailing 4-byte little-endian offset (relative to the start of the
// returned buffer) pointing at those 10 placeholder bytes. The offset is
// consumed by the store's versionstamped-value mutation and is never
// itself made durable.
func PackVersionstampIncomplete(placeholder [12]byte) []byte {
	buf := make([]byte, VersionstampWidthIncomplete)
	buf[0] = tagVersionstamp
	copy(buf[1:13], placeholder[:])
	binary.LittleEndian.PutUint32(buf[13:], 1)
	return buf
}

// UnpackVersionstamp decodes a complete version element produced by
// PackVersionstamp. Incomplete elements are never read back directly: by
// the time a version is durable and readable, the store has resolved it.
func UnpackVersionstamp(b []byte) ([12]byte, error) {
	var out [12]byte
	if len(b) != VersionstampWidth || b[0] != tagVersionstamp {
		return out, ErrShape
	}
	copy(out[:], b[1:13])
	return out, nil
}

// VersionstampPlaceholderOffset reads the trailing 4-byte offset out of an
// incomplete version element, returning the position (within b) of the
// first of the 10 store-assigned bytes.
func VersionstampPlaceholderOffset(b []byte) (int, error) {
	if len(b) != VersionstampWidthIncomplete {
		return 0, ErrShape
	}
	return int(binary.LittleEndian.Uint32(b[len(b)-4:])), nil
}
