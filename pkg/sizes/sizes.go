// Package sizes implements the purely observational byte counters the
// codec reports back to callers describing what a save or load actually
// touched on the wire.
package sizes

// Info mirrors the StoredSizes contract: counts of physical keys and
// their total key/value bytes, plus two booleans describing the layout
// that produced them. Durable bytes only: an incomplete version's
// non-durable trailing offset is never counted here.
type Info struct {
	KeyCount        int
	KeySize         int64
	ValueSize       int64
	Split           bool
	VersionedInline bool
}

// Reset zeroes the counters in place, preserving the caller's reference.
func (s *Info) Reset() {
	*s = Info{}
}

// Set replaces the counters with a single key/value pair, as the first
// chunk of a write does.
func (s *Info) Set(key, value []byte) {
	s.KeyCount = 1
	s.KeySize = int64(len(key))
	s.ValueSize = int64(len(value))
}

// Add accumulates one more key/value pair into the counters, as every
// chunk after the first does.
func (s *Info) Add(key, value []byte) {
	s.KeyCount++
	s.KeySize += int64(len(key))
	s.ValueSize += int64(len(value))
}

// TotalBytes is the combined key and value bytes counted so far.
func (s Info) TotalBytes() int64 {
	return s.KeySize + s.ValueSize
}
