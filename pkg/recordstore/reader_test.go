package recordstore

import (
	"bytes"
	"testing"

	"github.com/recordsplit/recordsplit/pkg/budget"
	"github.com/recordsplit/recordsplit/pkg/record"
	"github.com/recordsplit/recordsplit/pkg/splitkey"
	"github.com/recordsplit/recordsplit/pkg/version"
)

func TestSingleKeyReaderRoundTripSmall(t *testing.T) {
	store, ctx := newTestStore(t)
	tx, _ := store.BeginTransaction(ctx)
	w := NewWriter()
	r := NewSingleKeyReader(ReaderOptions{SplitLongRecords: true})

	prefix := []byte("rec/a/")
	payload := []byte("small payload")
	if _, err := w.Save(ctx, tx, prefix, payload, NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := r.Read(ctx, tx, prefix)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec == nil || !bytes.Equal(rec.Value, payload) {
		t.Fatalf("got %v, want payload %q", rec, payload)
	}
}

func TestSingleKeyReaderRoundTripSplit(t *testing.T) {
	store, ctx := newTestStore(t)
	tx, _ := store.BeginTransaction(ctx)
	w := NewWriter()
	r := NewSingleKeyReader(ReaderOptions{SplitLongRecords: true})

	prefix := []byte("rec/b/")
	payload := bytes.Repeat([]byte("y"), ChunkSize*2+37)
	if _, err := w.Save(ctx, tx, prefix, payload, NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := r.Read(ctx, tx, prefix)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec == nil || !bytes.Equal(rec.Value, payload) {
		t.Fatalf("reassembled payload mismatch (len got %d want %d)", len(rec.Value), len(payload))
	}
	if !rec.Sizes.Split {
		t.Errorf("expected Sizes.Split true for a chunked record")
	}
}

func TestSingleKeyReaderMissing(t *testing.T) {
	store, ctx := newTestStore(t)
	tx, _ := store.BeginTransaction(ctx)
	r := NewSingleKeyReader(ReaderOptions{SplitLongRecords: true})

	rec, err := r.Read(ctx, tx, []byte("rec/missing/"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for a missing prefix, got %v", rec)
	}
}

func TestSingleKeyReaderExists(t *testing.T) {
	store, ctx := newTestStore(t)
	tx, _ := store.BeginTransaction(ctx)
	w := NewWriter()
	r := NewSingleKeyReader(ReaderOptions{SplitLongRecords: true})

	prefix := []byte("rec/c/")
	if ok, err := r.Exists(ctx, tx, prefix); err != nil || ok {
		t.Fatalf("Exists before save = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := w.Save(ctx, tx, prefix, []byte("v"), NoVersion, SaveOptions{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, err := r.Exists(ctx, tx, prefix); err != nil || !ok {
		t.Fatalf("Exists after save = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestStreamingReaderMultipleRecordsForward(t *testing.T) {
	store, ctx := newTestStore(t)
	setupTx, _ := store.BeginTransaction(ctx)
	w := NewWriter()

	prefixes := [][]byte{[]byte("rec/0/"), []byte("rec/1/"), []byte("rec/2/")}
	payloads := [][]byte{[]byte("first"), bytes.Repeat([]byte("z"), ChunkSize+5), []byte("third")}
	for i, prefix := range prefixes {
		if _, err := w.Save(ctx, setupTx, prefix, payloads[i], NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if err := setupTx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.BeginTransaction(ctx)
	cur := readTx.GetRange(ctx, []byte("rec/"), RangeEnd([]byte("rec/")), false, 0)
	bm := budget.New(0, 0)
	sr := NewStreamingReader(readTx, cur, ReaderOptions{SplitLongRecords: true}, false, bm)

	var got [][]byte
	for {
		rec, err := sr.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec == nil {
			break
		}
		got = append(got, rec.Value)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Errorf("record %d: got %d bytes, want %d bytes", i, len(got[i]), len(payloads[i]))
		}
	}

	reason, err := sr.NoNextReason()
	if err != nil {
		t.Fatalf("NoNextReason: %v", err)
	}
	if reason != budget.ReasonExhausted {
		t.Errorf("NoNextReason() = %q, want %q", reason, budget.ReasonExhausted)
	}
}

func TestStreamingReaderRowBudgetStopsBetweenRecords(t *testing.T) {
	store, ctx := newTestStore(t)
	setupTx, _ := store.BeginTransaction(ctx)
	w := NewWriter()

	for i := 0; i < 3; i++ {
		prefix := []byte{'r', 'e', 'c', '/', byte('a' + i), '/'}
		if _, err := w.Save(ctx, setupTx, prefix, []byte("v"), NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if err := setupTx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.BeginTransaction(ctx)
	cur := readTx.GetRange(ctx, []byte("rec/"), RangeEnd([]byte("rec/")), false, 0)
	bm := budget.New(1, 0)
	sr := NewStreamingReader(readTx, cur, ReaderOptions{SplitLongRecords: true}, false, bm)

	first, err := sr.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first == nil {
		t.Fatalf("expected the first record despite the row budget of 1")
	}

	second, err := sr.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second != nil {
		t.Fatalf("expected the row budget to stop the stream after one record, got another record")
	}
	reason, err := sr.NoNextReason()
	if err != nil {
		t.Fatalf("NoNextReason: %v", err)
	}
	if reason != budget.ReasonRowLimit {
		t.Errorf("NoNextReason() = %q, want %q", reason, budget.ReasonRowLimit)
	}
}

func TestStreamingReaderCountsBoundaryEntryAgainstBudget(t *testing.T) {
	store, ctx := newTestStore(t)
	setupTx, _ := store.BeginTransaction(ctx)
	w := NewWriter()

	// Record A is split across 2 physical entries, forcing the reader to
	// stash record B's first entry as "pending" while it detects the
	// prefix boundary; record B is a single unsplit entry consumed
	// straight out of that pending slot on the next accumulateOneRecord
	// call. Every physical entry pulled from the cursor must count
	// against the budget exactly once.
	if _, err := w.Save(ctx, setupTx, []byte("rec/a/"), bytes.Repeat([]byte("x"), ChunkSize+5), NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save A: %v", err)
	}
	if _, err := w.Save(ctx, setupTx, []byte("rec/b/"), []byte("v"), NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save B: %v", err)
	}
	if err := setupTx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.BeginTransaction(ctx)
	cur := readTx.GetRange(ctx, []byte("rec/"), RangeEnd([]byte("rec/")), false, 0)
	bm := budget.New(0, 0)
	sr := NewStreamingReader(readTx, cur, ReaderOptions{SplitLongRecords: true}, false, bm)

	var count int
	for {
		rec, err := sr.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec == nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("got %d records, want 2", count)
	}
	if bm.Rows() != 3 {
		t.Fatalf("budget recorded %d entries, want 3 (2 chunks for record A, 1 entry for record B)", bm.Rows())
	}
}

// TestStreamingReaderReverseRoundTrip covers §4.5's reverse reassembly
// path end to end: a multi-record, versioned, split fixture scanned
// descending must yield records in descending prefix order with payloads
// identical to what a forward read would produce, and a durable version
// correctly decoded even though its entry physically sorts last in
// reverse order.
func TestStreamingReaderReverseRoundTrip(t *testing.T) {
	store, ctx := newTestStore(t)
	setupTx, _ := store.BeginTransaction(ctx)
	w := NewWriter()

	splitPayload := bytes.Repeat([]byte("v"), ChunkSize*2+123)
	stamp := version.Resolve([10]byte{9, 9, 9}, 3)
	if _, err := w.Save(ctx, setupTx, []byte("rec/a/"), splitPayload, CompleteVersion(stamp), SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save rec/a: %v", err)
	}
	if _, err := w.Save(ctx, setupTx, []byte("rec/b/"), []byte("v"), NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save rec/b: %v", err)
	}
	if err := setupTx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.BeginTransaction(ctx)
	cur := readTx.GetRange(ctx, []byte("rec/"), RangeEnd([]byte("rec/")), true, 0)
	sr := NewStreamingReader(readTx, cur, ReaderOptions{SplitLongRecords: true}, true, budget.New(0, 0))

	var got []*record.Record
	for {
		rec, err := sr.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec == nil {
			break
		}
		got = append(got, rec)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}

	// Descending scan visits "rec/b/" before "rec/a/".
	if !bytes.Equal(got[0].Prefix, []byte("rec/b/")) || !bytes.Equal(got[0].Value, []byte("v")) {
		t.Errorf("record 0 = %+v, want rec/b/ = %q", got[0], "v")
	}
	if got[0].Version != nil {
		t.Errorf("record 0 should carry no version, got %v", got[0].Version)
	}

	if !bytes.Equal(got[1].Prefix, []byte("rec/a/")) {
		t.Fatalf("record 1 prefix = %q, want rec/a/", got[1].Prefix)
	}
	if !bytes.Equal(got[1].Value, splitPayload) {
		t.Fatalf("reverse-reassembled payload mismatch (len got %d want %d)", len(got[1].Value), len(splitPayload))
	}
	if got[1].Version == nil || *got[1].Version != stamp {
		t.Fatalf("record 1 version = %v, want %v", got[1].Version, stamp)
	}
	if !got[1].Sizes.Split {
		t.Errorf("expected Sizes.Split true for the chunked record")
	}
}

func TestStreamingReaderReverseMissingStartChunkFails(t *testing.T) {
	store, ctx := newTestStore(t)
	setupTx, _ := store.BeginTransaction(ctx)
	w := NewWriter()

	payload := bytes.Repeat([]byte("z"), ChunkSize*2+10)
	if _, err := w.Save(ctx, setupTx, []byte("rec/only/"), payload, NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := setupTx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Drop the START_SPLIT chunk directly in the backing store, simulating
	// a record whose first chunk is missing, then scan in reverse with
	// this chunk as the last (lowest-index) entry the cursor would
	// otherwise yield.
	dropTx, _ := store.BeginTransaction(ctx)
	dropTx.Clear(ctx, splitkey.PackKey([]byte("rec/only/"), splitkey.StartSplitIndex))
	if err := dropTx.Commit(ctx); err != nil {
		t.Fatalf("Commit drop: %v", err)
	}

	readTx, _ := store.BeginTransaction(ctx)
	cur := readTx.GetRange(ctx, []byte("rec/"), RangeEnd([]byte("rec/")), true, 0)
	sr := NewStreamingReader(readTx, cur, ReaderOptions{SplitLongRecords: true}, true, budget.New(0, 0))

	if _, err := sr.Next(ctx); err == nil {
		t.Fatalf("expected FoundSplitWithoutStart when the last record in a reverse scan is missing its start chunk")
	}
}

// TestSingleKeyReaderReadsIncompleteVersionWithinSameTransaction covers
// §4.3's transaction-local incomplete-version injection: a record saved
// with an incomplete version must report that version to a read issued
// later in the same, still-uncommitted transaction, even though no
// durable version entry has been resolved yet.
func TestSingleKeyReaderReadsIncompleteVersionWithinSameTransaction(t *testing.T) {
	store, ctx := newTestStore(t)
	tx, _ := store.BeginTransaction(ctx)
	w := NewWriter()
	r := NewSingleKeyReader(ReaderOptions{SplitLongRecords: true})

	prefix := []byte("rec/d/")
	if _, err := w.Save(ctx, tx, prefix, []byte("x"), IncompleteVersion(7), SaveOptions{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := r.Read(ctx, tx, prefix)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec == nil || string(rec.Value) != "x" {
		t.Fatalf("got %v, want value %q", rec, "x")
	}
	if rec.Version == nil {
		t.Fatalf("expected a synthesized incomplete version, got nil")
	}
	if want := version.Incomplete(7); *rec.Version != want {
		t.Fatalf("Version = %v, want %v", *rec.Version, want)
	}
	if !rec.Sizes.VersionedInline {
		t.Errorf("expected Sizes.VersionedInline true for an injected local version")
	}

	unsplitKey := splitkey.PackKey(prefix, splitkey.UnsplitIndex)
	versionKey := splitkey.PackKey(prefix, splitkey.VersionIndex)
	wantKeyCount := 2
	wantKeySize := int64(len(unsplitKey) + len(versionKey))
	wantValueSize := int64(len("x") + 1 + 12)
	if rec.Sizes.KeyCount != wantKeyCount {
		t.Errorf("KeyCount = %d, want %d", rec.Sizes.KeyCount, wantKeyCount)
	}
	if rec.Sizes.KeySize != wantKeySize {
		t.Errorf("KeySize = %d, want %d", rec.Sizes.KeySize, wantKeySize)
	}
	if rec.Sizes.ValueSize != wantValueSize {
		t.Errorf("ValueSize = %d, want %d (payload + 1 + 12 synthesized version bytes)", rec.Sizes.ValueSize, wantValueSize)
	}
}

func TestStreamingReaderContinuationAccessWindow(t *testing.T) {
	store, ctx := newTestStore(t)
	setupTx, _ := store.BeginTransaction(ctx)
	w := NewWriter()
	prefix := []byte("rec/only/")
	if _, err := w.Save(ctx, setupTx, prefix, []byte("v"), NoVersion, SaveOptions{SplitLongRecords: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := setupTx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.BeginTransaction(ctx)
	cur := readTx.GetRange(ctx, []byte("rec/"), RangeEnd([]byte("rec/")), false, 0)
	sr := NewStreamingReader(readTx, cur, ReaderOptions{SplitLongRecords: true}, false, budget.New(0, 0))

	if _, err := sr.Continuation(); err == nil {
		t.Fatalf("expected IllegalContinuationAccess before the first Next call")
	}

	if _, err := sr.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := sr.Continuation(); err != nil {
		t.Fatalf("expected Continuation to be accessible immediately after Next, got %v", err)
	}
}
