// Package kvs defines the narrow slice of an ordered, transactional
// key-value store that the record split codec needs: byte-range scans in
// either direction, point and range clears, and the versionstamped-value
// mutation the codec relies on to let the store assign a record's commit
// order. It intentionally does not model anything about how keys are
// structured (tuple packing, subspaces) or about isolation levels beyond
// read-your-writes within one transaction; those are a collaborator's
// concern, not this package's.
package kvs

import (
	"context"
	"errors"
)

// Entry is one physical key/value pair read back from the store.
type Entry struct {
	Key   []byte
	Value []byte
}

// ErrCorruptContinuation is returned when a continuation token handed back
// to the store cannot be decoded, whether because it was truncated,
// produced by a different store, or tampered with.
var ErrCorruptContinuation = errors.New("kvs: corrupt continuation token")

// EntryCursor streams entries from a previously issued range scan.
type EntryCursor interface {
	// Next advances to and returns the next entry. ok is false once the
	// scan is exhausted; a non-nil error means the scan stopped early
	// because of ctx cancellation or a store-level failure.
	Next(ctx context.Context) (entry Entry, ok bool, err error)

	// Continuation returns an opaque token that resumes a scan over the
	// same bounds immediately after the last entry Next returned (or at
	// the original start, if Next was never called).
	Continuation() []byte
}

// ReadTransaction is the read-only half of Transaction, split out so a
// SingleKeyReader or StreamingReader can be written against it without
// implying it may also write.
type ReadTransaction interface {
	// Get returns the value stored at key, or (nil, nil) if key is unset.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// GetRange scans [begin, end) in ascending order, or the same bounds
	// in descending order when reverse is true. limit <= 0 means
	// unlimited.
	GetRange(ctx context.Context, begin, end []byte, reverse bool, limit int) EntryCursor
}

// Transaction is a single unit of work against a Store. Set, Clear and
// ClearRange stage mutations that become visible to later reads on the
// same Transaction immediately, but to other transactions only after
// Commit succeeds. A write staged by AddVersionstampedValue is not visible
// to reads before Commit, since its value depends on the commit order;
// the local version cache stands in for it until then.
type Transaction interface {
	ReadTransaction

	// Set stages an unconditional write of value at key.
	Set(ctx context.Context, key, value []byte)

	// Clear stages removal of key, if present.
	Clear(ctx context.Context, key []byte)

	// ClearRange stages removal of every key in [begin, end).
	ClearRange(ctx context.Context, begin, end []byte)

	// AddVersionstampedValue stages a write at key whose value carries an
	// incomplete version placeholder (see package version and package
	// tuple). At commit time the store overwrites the placeholder's first
	// 10 bytes with its assigned commit order and strips the trailing
	// offset before making the value durable.
	AddVersionstampedValue(ctx context.Context, key []byte, valueWithPlaceholder []byte)

	// AddToLocalVersionCache records the local ordinal a caller assigned
	// to a record it just wrote in this transaction, so that a read of
	// the same record later in the transaction can report a version
	// before the transaction has committed.
	AddToLocalVersionCache(primaryKey []byte, local uint16)

	// GetLocalVersion returns the local ordinal previously recorded by
	// AddToLocalVersionCache for primaryKey, if any.
	GetLocalVersion(primaryKey []byte) (local uint16, ok bool)

	// RemoveVersionMutation cancels a previously staged
	// AddVersionstampedValue for key, used when a record is overwritten
	// before the transaction that registered its version placeholder
	// commits.
	RemoveVersionMutation(key []byte)

	// Commit applies every staged mutation atomically and, for any
	// AddVersionstampedValue calls, assigns their commit order.
	Commit(ctx context.Context) error
}

// Store opens transactions against an underlying ordered key-value space.
type Store interface {
	BeginTransaction(ctx context.Context) (Transaction, error)
}
