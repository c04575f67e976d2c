package memkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/recordsplit/recordsplit/pkg/common/log"
	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/tuple"
)

// Txn is a single transaction against a Store. Writes, clears, and
// versionstamped-value mutations are staged in memory and are visible to
// reads on this same Txn immediately, but to any other transaction only
// after Commit succeeds. A staged versionstamped-value mutation is
// deliberately invisible to this transaction's own reads: resolving it
// requires a commit order that does not exist yet, which is exactly why
// callers must consult the local version cache instead of reading it
// back directly.
type Txn struct {
	store *Store

	writes           map[string][]byte
	clears           map[string]bool
	clearRanges      [][2][]byte
	versionMutations map[string][]byte

	localVersionCache map[string]uint16
	committed         bool
}

func (t *Txn) Get(ctx context.Context, key []byte) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	k := string(key)
	if t.clears[k] {
		return nil, nil
	}
	if v, ok := t.writes[k]; ok {
		return append([]byte{}, v...), nil
	}
	if t.inClearedRange(key) {
		return nil, nil
	}
	return t.store.get(key), nil
}

func (t *Txn) inClearedRange(key []byte) bool {
	for _, r := range t.clearRanges {
		if bytes.Compare(key, r[0]) >= 0 && bytes.Compare(key, r[1]) < 0 {
			return true
		}
	}
	return false
}

func (t *Txn) GetRange(ctx context.Context, begin, end []byte, reverse bool, limit int) kvs.EntryCursor {
	entries := t.mergedRange(begin, end)
	if reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return &cursor{entries: entries, begin: begin, end: end, reverse: reverse}
}

// mergedRange computes the read-your-writes view of [begin, end):
// committed entries from the store, overlaid with this transaction's
// staged clears and writes, in ascending key order.
func (t *Txn) mergedRange(begin, end []byte) []kvs.Entry {
	base := t.store.scan(begin, end, false)
	byKey := make(map[string][]byte, len(base))
	order := make([]string, 0, len(base))
	for _, e := range base {
		k := string(e.Key)
		byKey[k] = e.Value
		order = append(order, k)
	}
	for _, r := range t.clearRanges {
		for k := range byKey {
			if bytes.Compare([]byte(k), r[0]) >= 0 && bytes.Compare([]byte(k), r[1]) < 0 {
				delete(byKey, k)
			}
		}
	}
	for k := range t.clears {
		delete(byKey, k)
	}
	for k, v := range t.writes {
		kb := []byte(k)
		if bytes.Compare(kb, begin) < 0 || bytes.Compare(kb, end) >= 0 {
			continue
		}
		if _, existed := byKey[k]; !existed {
			order = append(order, k)
		}
		byKey[k] = v
	}
	sort.Strings(order)
	seen := make(map[string]bool, len(order))
	out := make([]kvs.Entry, 0, len(order))
	for _, k := range order {
		if seen[k] {
			continue
		}
		seen[k] = true
		v, ok := byKey[k]
		if !ok {
			continue
		}
		out = append(out, kvs.Entry{Key: []byte(k), Value: v})
	}
	return out
}

func (t *Txn) Set(ctx context.Context, key, value []byte) {
	k := string(key)
	delete(t.clears, k)
	t.writes[k] = append([]byte{}, value...)
}

func (t *Txn) Clear(ctx context.Context, key []byte) {
	k := string(key)
	delete(t.writes, k)
	t.clears[k] = true
}

func (t *Txn) ClearRange(ctx context.Context, begin, end []byte) {
	for k := range t.writes {
		kb := []byte(k)
		if bytes.Compare(kb, begin) >= 0 && bytes.Compare(kb, end) < 0 {
			delete(t.writes, k)
		}
	}
	t.clearRanges = append(t.clearRanges, [2][]byte{
		append([]byte{}, begin...),
		append([]byte{}, end...),
	})
}

func (t *Txn) AddVersionstampedValue(ctx context.Context, key []byte, valueWithPlaceholder []byte) {
	k := string(key)
	delete(t.clears, k)
	delete(t.writes, k)
	t.versionMutations[k] = append([]byte{}, valueWithPlaceholder...)
}

func (t *Txn) AddToLocalVersionCache(primaryKey []byte, local uint16) {
	t.localVersionCache[string(primaryKey)] = local
}

func (t *Txn) GetLocalVersion(primaryKey []byte) (uint16, bool) {
	v, ok := t.localVersionCache[string(primaryKey)]
	return v, ok
}

func (t *Txn) RemoveVersionMutation(key []byte) {
	delete(t.versionMutations, string(key))
}

func (t *Txn) Commit(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	order := t.store.nextCommitOrder()
	resolved := make(map[string][]byte, len(t.versionMutations))
	for k, v := range t.versionMutations {
		r, err := resolveVersionstamp(v, order)
		if err != nil {
			return err
		}
		resolved[k] = r
	}
	for _, r := range t.clearRanges {
		t.store.clearRange(r[0], r[1])
	}
	for k := range t.clears {
		t.store.clear([]byte(k))
	}
	for k, v := range t.writes {
		t.store.set([]byte(k), v)
	}
	for k, v := range resolved {
		t.store.set([]byte(k), v)
	}
	t.committed = true
	return nil
}

// resolveVersionstamp overwrites the 10 placeholder bytes the trailing
// offset points at with order, then strips the non-durable 4-byte
// offset, as the store's versionstamped-value mutation is specified to
// do.
func resolveVersionstamp(value []byte, order [10]byte) ([]byte, error) {
	offset, err := tuple.VersionstampPlaceholderOffset(value)
	if err != nil {
		return nil, fmt.Errorf("memkv: malformed versionstamped value: %w", err)
	}
	if offset < 0 || offset+10 > len(value)-4 {
		return nil, fmt.Errorf("memkv: versionstamp offset %d out of range: %w", offset, tuple.ErrShape)
	}
	out := append([]byte{}, value[:len(value)-4]...)
	copy(out[offset:offset+10], order[:])
	return out, nil
}

// cursor streams a pre-materialized, already-ordered slice of entries
// and produces xxhash-checksummed continuation tokens, modeled on the
// block checksums this module's teacher computes for its own on-disk
// chunks.
type cursor struct {
	entries []kvs.Entry
	begin   []byte
	end     []byte
	reverse bool
	pos     int
}

func (c *cursor) Next(ctx context.Context) (kvs.Entry, bool, error) {
	if ctx.Err() != nil {
		return kvs.Entry{}, false, ctx.Err()
	}
	if c.pos >= len(c.entries) {
		return kvs.Entry{}, false, nil
	}
	e := c.entries[c.pos]
	c.pos++
	return e, true, nil
}

// Continuation encodes the key most recently returned by Next (or, if
// Next has not yet been called, the scan's original start) together with
// an xxhash checksum so a corrupt or foreign token is detected at decode
// time rather than silently mis-resuming a scan.
func (c *cursor) Continuation() []byte {
	var lastKey []byte
	if c.pos > 0 {
		lastKey = c.entries[c.pos-1].Key
	}
	return EncodeContinuation(lastKey, c.reverse)
}

// EncodeContinuation builds an opaque resumption token for lastKey (the
// most recently consumed key, or nil if nothing has been consumed yet)
// and the scan direction it belongs to.
func EncodeContinuation(lastKey []byte, reverse bool) []byte {
	buf := make([]byte, 1+len(lastKey)+8)
	if reverse {
		buf[0] = 1
	}
	copy(buf[1:], lastKey)
	sum := xxhash.Sum64(buf[:1+len(lastKey)])
	binary.BigEndian.PutUint64(buf[1+len(lastKey):], sum)
	return buf
}

// DecodeContinuation reverses EncodeContinuation, returning the key to
// resume after and the direction the token was issued for.
func DecodeContinuation(token []byte) (lastKey []byte, reverse bool, hasLastKey bool, err error) {
	if len(token) < 1+8 {
		log.Warn("continuation token too short to carry a checksum: %d bytes", len(token))
		return nil, false, false, kvs.ErrCorruptContinuation
	}
	body := token[:len(token)-8]
	want := binary.BigEndian.Uint64(token[len(token)-8:])
	if xxhash.Sum64(body) != want {
		log.Warn("continuation token checksum mismatch, rejecting as corrupt or foreign")
		return nil, false, false, kvs.ErrCorruptContinuation
	}
	reverse = body[0] == 1
	key := body[1:]
	if len(key) == 0 {
		return nil, reverse, false, nil
	}
	return append([]byte{}, key...), reverse, true, nil
}

// ResumeBounds computes the [begin, end) a caller should re-issue
// GetRange with to continue a scan from a previously captured
// continuation, given the scan's original bounds.
func ResumeBounds(originalBegin, originalEnd, token []byte) (begin, end []byte, err error) {
	lastKey, reverse, hasLastKey, err := DecodeContinuation(token)
	if err != nil {
		return nil, nil, err
	}
	if !hasLastKey {
		return originalBegin, originalEnd, nil
	}
	if reverse {
		return originalBegin, lastKey, nil
	}
	return nextKey(lastKey), originalEnd, nil
}

// nextKey returns the smallest byte string strictly greater than key.
func nextKey(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}
