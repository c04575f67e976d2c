// Package version deals with the 12-byte version stamps that the record
// split codec attaches to a record's most recent write: 10 bytes assigned
// by the underlying store at commit time, plus 2 bytes the caller supplies
// to order writes made within the same transaction.
package version

import (
	"bytes"
	"encoding/binary"
)

// Stamp is a resolved, durable 12-byte version: a 10-byte, monotonically
// increasing commit order assigned by the store, followed by 2 caller
// bytes used to order multiple writes inside one transaction.
type Stamp [12]byte

// Placeholder is the value a caller writes before the store has assigned
// its 10-byte commit order; only the trailing 2 caller bytes are
// meaningful until the store resolves it.
type Placeholder [12]byte

// NewPlaceholder builds a Placeholder from the caller-supplied local
// ordinal, leaving the first 10 bytes zeroed for the store to fill in.
func NewPlaceholder(local uint16) Placeholder {
	var p Placeholder
	binary.BigEndian.PutUint16(p[10:], local)
	return p
}

// Local returns the 2-byte caller ordinal embedded in a stamp or
// placeholder.
func (s Stamp) Local() uint16 {
	return binary.BigEndian.Uint16(s[10:])
}

// Compare orders stamps by their full 12 bytes, which is equivalent to
// ordering first by commit order and then by local ordinal, matching the
// order the store actually applied the writes in.
func Compare(a, b Stamp) int {
	return bytes.Compare(a[:], b[:])
}

// Resolve combines a store-assigned 10-byte commit order with the local
// ordinal captured in a placeholder to produce the durable stamp that
// replaces it.
func Resolve(commitOrder [10]byte, local uint16) Stamp {
	var s Stamp
	copy(s[:10], commitOrder[:])
	binary.BigEndian.PutUint16(s[10:], local)
	return s
}

// Incomplete builds the transaction-local view of a version that has not
// been assigned a commit order yet: its first 10 bytes are zeroed rather
// than meaningful, and only Local() may be trusted.
func Incomplete(local uint16) Stamp {
	return Resolve([10]byte{}, local)
}
