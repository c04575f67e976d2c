package recordstore

import (
	"github.com/recordsplit/recordsplit/pkg/sizes"
	"github.com/recordsplit/recordsplit/pkg/splitkey"
	"github.com/recordsplit/recordsplit/pkg/version"
)

// accumulator is the reassembly state machine shared by SingleKeyReader
// and StreamingReader: feed it the entries for one record, in scan order,
// and it either keeps accumulating or reports the record complete. It
// holds no reference to a transaction or cursor; it only reasons about
// the suffix sequence and bytes it has been handed.
type accumulator struct {
	prefix           []byte
	reverse          bool
	oldVersionFormat bool

	hasResult bool
	result    []byte
	split     bool

	hasVersion bool
	version    version.Stamp

	hasLastIndex bool
	lastIndex    int64

	sizes sizes.Info
}

func newAccumulator(prefix []byte, reverse, oldVersionFormat bool) *accumulator {
	return &accumulator{prefix: prefix, reverse: reverse, oldVersionFormat: oldVersionFormat}
}

// touch records key/value into the running size counters: the first
// entry of any kind resets the counters via sizes.Set, every entry after
// that accumulates via sizes.Add.
func (a *accumulator) touch(key, value []byte) {
	if a.sizes.KeyCount == 0 {
		a.sizes.Set(key, value)
		return
	}
	a.sizes.Add(key, value)
}

// afterVersionOnly reports whether the only entry seen so far is a
// version entry, i.e. we are in the "initial or after-version" state
// from the forward transition table.
func (a *accumulator) afterVersionOnly() bool {
	return !a.hasResult && (!a.hasLastIndex || a.lastIndex == splitkey.VersionIndex)
}

// Append feeds one entry into the accumulator. complete reports whether
// the record is now fully assembled and the caller should stop feeding
// entries into it (forward UNSPLIT, or reverse VERSION).
func (a *accumulator) Append(key []byte, index int64, value []byte) (complete bool, err error) {
	if index == splitkey.VersionIndex {
		return a.appendVersion(key, value)
	}
	return a.appendData(key, index, value)
}

func (a *accumulator) appendVersion(key, value []byte) (bool, error) {
	if a.oldVersionFormat {
		return false, errOldVersionFormatViolation(fieldsFor(a.prefix, splitkey.VersionIndex, a.reverse))
	}
	if a.hasVersion {
		return false, errFoundSplitWithoutStart(splitkey.VersionIndex, a.reverse, fieldsFor(a.prefix, splitkey.VersionIndex, a.reverse))
	}
	if !a.reverse && a.hasLastIndex {
		// Forward order is VERSION < UNSPLIT < split indices, so a
		// version entry can only legally be the first entry seen.
		return false, errFoundSplitWithoutStart(splitkey.VersionIndex, a.reverse, fieldsFor(a.prefix, splitkey.VersionIndex, a.reverse))
	}
	stamp, perr := splitkey.ParseVersionValue(value)
	if perr != nil {
		return false, errSubkeyShapeViolation(fieldsFor(a.prefix, splitkey.VersionIndex, a.reverse))
	}
	a.touch(key, value)
	a.hasVersion = true
	a.version = stamp
	a.lastIndex = splitkey.VersionIndex
	a.hasLastIndex = true
	if a.reverse {
		// Reverse order places VERSION last; seeing it is the signal
		// that the record (whatever data preceded it) is complete.
		return true, nil
	}
	return false, nil
}

func (a *accumulator) appendData(key []byte, index int64, value []byte) (bool, error) {
	switch {
	case a.afterVersionOnly():
		return a.appendStart(key, index, value)
	case a.split:
		return a.appendContinuation(key, index, value)
	default:
		// Only reachable once an UNSPLIT entry has already been seen; a
		// second UNSPLIT entry for the same prefix is a duplicate, and any
		// other data entry is a mixed layout.
		if index == splitkey.UnsplitIndex {
			return false, errMoreThanOneUnsplitValue(fieldsFor(a.prefix, index, a.reverse))
		}
		return false, errUnsplitFollowedBySplit(fieldsFor(a.prefix, index, a.reverse))
	}
}

func (a *accumulator) appendStart(key []byte, index int64, value []byte) (bool, error) {
	switch {
	case index == splitkey.UnsplitIndex:
		if a.hasResult {
			return false, errMoreThanOneUnsplitValue(fieldsFor(a.prefix, index, a.reverse))
		}
		a.touch(key, value)
		a.result = append([]byte{}, value...)
		a.hasResult = true
		a.split = false
		a.lastIndex = index
		a.hasLastIndex = true
		if a.reverse {
			// A version entry may still follow in reverse order.
			return false, nil
		}
		return true, nil

	case !a.reverse && index == splitkey.StartSplitIndex, a.reverse && index >= splitkey.StartSplitIndex:
		a.touch(key, value)
		a.result = append([]byte{}, value...)
		a.hasResult = true
		a.split = true
		a.lastIndex = index
		a.hasLastIndex = true
		return false, nil

	default:
		return false, errFoundSplitWithoutStart(index, a.reverse, fieldsFor(a.prefix, index, a.reverse))
	}
}

func (a *accumulator) appendContinuation(key []byte, index int64, value []byte) (bool, error) {
	if splitkey.IsRecordBoundary(a.lastIndex, index, a.reverse) {
		var expected int64
		if a.reverse {
			expected = a.lastIndex - 1
		} else {
			expected = a.lastIndex + 1
		}
		return false, errSplitSegmentsOutOfOrder(expected, index, fieldsFor(a.prefix, index, a.reverse))
	}
	a.touch(key, value)
	if a.reverse {
		a.result = append(append([]byte{}, value...), a.result...)
	} else {
		a.result = append(a.result, value...)
	}
	a.lastIndex = index
	return false, nil
}

// ReachedSplitStart reports whether split accumulation has reached
// START_SPLIT, which in reverse order means the record's start chunk has
// been seen and the record may legally end here.
func (a *accumulator) ReachedSplitStart() bool {
	if !a.split {
		return true
	}
	return a.lastIndex == splitkey.StartSplitIndex
}

// Finalize checks the completion invariant that cannot be verified
// incrementally: a version with no accompanying data is not a record.
func (a *accumulator) Finalize() error {
	if a.hasVersion && !a.hasResult {
		return errFoundSplitWithoutStart(splitkey.VersionIndex, a.reverse, fieldsFor(a.prefix, splitkey.VersionIndex, a.reverse))
	}
	return nil
}

// HasData reports whether any data (version or chunk) has been
// accumulated at all.
func (a *accumulator) HasData() bool {
	return a.hasResult || a.hasVersion
}

// Sizes finalizes and returns the observational counters for this
// record.
func (a *accumulator) Sizes() sizes.Info {
	s := a.sizes
	s.Split = a.split
	s.VersionedInline = a.hasVersion
	return s
}

// Version returns the version stamp accumulated for this record, if any.
func (a *accumulator) Version() *version.Stamp {
	if !a.hasVersion {
		return nil
	}
	v := a.version
	return &v
}

// Payload returns the accumulated payload. It is nil if no UNSPLIT or
// split entry was ever seen (a bare version, or nothing at all).
func (a *accumulator) Payload() []byte {
	if !a.hasResult {
		return nil
	}
	return a.result
}

// MarkLocalVersion records a transaction-local incomplete version that
// was not read from a durable entry, updating the size counters the same
// way a durable version entry would have.
func (a *accumulator) MarkLocalVersion(stamp version.Stamp, versionKey []byte) {
	a.hasVersion = true
	a.version = stamp
	a.touch(versionKey, make([]byte, 1+12))
}
