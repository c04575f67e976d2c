package recordstore

import "github.com/recordsplit/recordsplit/pkg/sizes"

// SaveOptions controls how Writer.Save lays out a record.
type SaveOptions struct {
	// SplitLongRecords allows a payload longer than CHUNK_SIZE to be
	// written as multiple chunk entries. If false, a save whose payload
	// exceeds CHUNK_SIZE fails with RecordTooLong.
	SplitLongRecords bool

	// OmitUnsplitSuffix writes a single entry at the bare prefix, with
	// no suffix at all, for backward compatibility with the oldest
	// on-disk generation. It requires SplitLongRecords=false and a nil
	// Version; any other combination fails with InvalidArgument.
	OmitUnsplitSuffix bool

	// ClearBasedOnPreviousSizeInfo, together with PreviousSizes, lets a
	// save clear only the minimal range needed to remove a prior
	// record's entries instead of clearing the whole prefix range. When
	// false, any clear the save performs covers the whole prefix range.
	ClearBasedOnPreviousSizeInfo bool

	// PreviousSizes describes the record previously stored at this
	// prefix, if any, and is consulted only when
	// ClearBasedOnPreviousSizeInfo is true.
	PreviousSizes *sizes.Info

	// SizeInfo, if non-nil, receives the counters for what this save
	// actually wrote.
	SizeInfo *sizes.Info
}

// DeleteOptions controls how Writer.Delete clears a record.
type DeleteOptions struct {
	// SplitLongRecords must match the value used when the record was
	// (or could have been) saved, so delete clears the right range.
	SplitLongRecords bool

	// MissingUnsplitRecordSuffix selects the legacy direct-key clear
	// path, mirroring SaveOptions.OmitUnsplitSuffix.
	MissingUnsplitRecordSuffix bool

	// ClearBasedOnPreviousSizeInfo and PreviousSizes behave as in
	// SaveOptions.
	ClearBasedOnPreviousSizeInfo bool
	PreviousSizes                *sizes.Info

	// SizeInfo, if non-nil, receives the counters for what was cleared.
	SizeInfo *sizes.Info
}

// ReaderOptions selects the on-disk format generation a Reader expects to
// see, shared between SingleKeyReader and StreamingReader.
type ReaderOptions struct {
	// SplitLongRecords mirrors SaveOptions.SplitLongRecords: whether the
	// reader should be prepared to see chunked records at all.
	SplitLongRecords bool

	// MissingUnsplitRecordSuffix mirrors SaveOptions.OmitUnsplitSuffix:
	// whether records were written without a suffix at all.
	MissingUnsplitRecordSuffix bool
}

// oldVersionFormat reports whether this configuration describes the
// legacy generation that predates version stamps and suffixes entirely;
// a VERSION entry observed under this configuration is always an error.
func (o ReaderOptions) oldVersionFormat() bool {
	return !o.SplitLongRecords && o.MissingUnsplitRecordSuffix
}

// legacyDirectPath reports whether reads should bypass the range scan
// entirely and point-read the bare prefix key.
func (o ReaderOptions) legacyDirectPath() bool {
	return !o.SplitLongRecords && o.MissingUnsplitRecordSuffix
}
