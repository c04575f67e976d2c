// Package splitkey builds and parses the physical keys the record split
// codec stores under a record's prefix: one optional version entry and one
// or more chunk entries, ordered so that a plain range scan visits them in
// the order the reader needs.
package splitkey

import (
	"bytes"
	"errors"

	"github.com/recordsplit/recordsplit/pkg/tuple"
	"github.com/recordsplit/recordsplit/pkg/version"
)

// Reserved suffix indices. VersionIndex sorts before every data index, so
// a forward range scan over a record's prefix always yields the version
// entry (if any) first; UnsplitIndex is used when the whole record fits
// in a single chunk; StartSplitIndex is the first chunk of a record that
// needed more than one.
const (
	VersionIndex    int64 = -1
	UnsplitIndex    int64 = 0
	StartSplitIndex int64 = 1
)

// ErrNotUnderPrefix is returned when a physical key does not begin with
// the expected record prefix.
var ErrNotUnderPrefix = errors.New("splitkey: key is not under the given prefix")

// PackKey builds the physical key for one suffix index under prefix.
func PackKey(prefix []byte, index int64) []byte {
	suffix := tuple.PackInt64(index)
	out := make([]byte, 0, len(prefix)+len(suffix))
	out = append(out, prefix...)
	out = append(out, suffix...)
	return out
}

// ParseIndex strips prefix from key and decodes the remaining suffix as a
// single int64 tuple element. It fails if key is not under prefix or if
// the suffix is not shaped like a single-element int64 tuple, which is how
// the codec detects an unrelated key sharing the same byte prefix.
func ParseIndex(prefix, key []byte) (int64, error) {
	if !bytes.HasPrefix(key, prefix) {
		return 0, ErrNotUnderPrefix
	}
	return tuple.UnpackInt64(key[len(prefix):])
}

// IsRecordBoundary reports whether index marks the start of a different
// record than the one being accumulated, given the most recently seen
// data index and the scan direction. Forward scans see increasing indices
// within one record and reset at index <= 0 (VersionIndex or
// UnsplitIndex/StartSplitIndex restarting at 1) only when index does not
// continue the run; reverse scans see decreasing indices and a boundary is
// any index that does not immediately precede lastIndex.
func IsRecordBoundary(lastIndex int64, index int64, reverse bool) bool {
	if reverse {
		return index != lastIndex-1
	}
	return index != lastIndex+1
}

// PackVersionValue encodes a resolved, durable version stamp as the value
// of a version entry.
func PackVersionValue(stamp version.Stamp) []byte {
	return tuple.PackVersionstamp([12]byte(stamp))
}

// PackVersionPlaceholder encodes an unresolved version placeholder as the
// value of a version entry, ready for a versionstamped-value mutation.
func PackVersionPlaceholder(p version.Placeholder) []byte {
	return tuple.PackVersionstampIncomplete([12]byte(p))
}

// ParseVersionValue decodes the value of a version entry that has already
// been resolved by the store into a durable stamp.
func ParseVersionValue(value []byte) (version.Stamp, error) {
	raw, err := tuple.UnpackVersionstamp(value)
	if err != nil {
		return version.Stamp{}, err
	}
	return version.Stamp(raw), nil
}
