// Package record holds the logical shapes the codec moves between callers
// and the underlying store: a single record going in or coming out, and
// the size accounting that travels with it.
package record

import (
	"github.com/recordsplit/recordsplit/pkg/sizes"
	"github.com/recordsplit/recordsplit/pkg/version"
)

// Record is one logical record: the raw bytes a caller saved or the bytes
// a reader reassembled, plus the prefix it lives under and, if the record
// carries one, the version stamp of its most recent write.
type Record struct {
	Prefix  []byte
	Value   []byte
	Version *version.Stamp
	Sizes   sizes.Info
}

// SaveResult reports what a Writer.Save call actually did: how many
// physical keys it touched and how many bytes of key and value it wrote,
// useful for callers tracking their own transaction size limits.
type SaveResult struct {
	Sizes sizes.Info
}

// DeleteResult reports what a delete touched, mirroring SaveResult for
// callers that account for clears the same way as writes.
type DeleteResult struct {
	Sizes   sizes.Info
	Existed bool
}
