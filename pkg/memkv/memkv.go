// Package memkv is a reference, in-process implementation of the kvs
// interfaces used for testing and for the standalone command-line tools
// in this module. It is not meant to be a real storage engine: it keeps
// everything in one google/btree-ordered tree, guarded by a single mutex
// that each individual tree operation takes, with no persistence and no
// transaction isolation: a commit applies its mutations one tree operation
// at a time, so concurrent commits and reads may interleave with it.
package memkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/recordsplit/recordsplit/pkg/kvs"
)

type item struct {
	key   []byte
	value []byte
}

func (i *item) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(*item).key) < 0
}

// Store is a shared, ordered key-value space that transactions read and
// write against.
type Store struct {
	mu            sync.Mutex
	tree          *btree.BTree
	commitCounter uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{tree: btree.New(32)}
}

// BeginTransaction starts a new transaction against the store.
func (s *Store) BeginTransaction(ctx context.Context) (kvs.Transaction, error) {
	return &Txn{
		store:             s,
		writes:            map[string][]byte{},
		clears:            map[string]bool{},
		versionMutations:  map[string][]byte{},
		localVersionCache: map[string]uint16{},
	}, nil
}

func (s *Store) get(key []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.tree.Get(&item{key: key})
	if found == nil {
		return nil
	}
	return append([]byte{}, found.(*item).value...)
}

func (s *Store) set(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(&item{key: append([]byte{}, key...), value: append([]byte{}, value...)})
}

func (s *Store) clear(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(&item{key: key})
}

func (s *Store) clearRange(begin, end []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var victims []*item
	s.tree.AscendRange(&item{key: begin}, &item{key: end}, func(i btree.Item) bool {
		victims = append(victims, i.(*item))
		return true
	})
	for _, v := range victims {
		s.tree.Delete(v)
	}
}

// scan returns a snapshot copy of every committed entry in [begin, end),
// ascending or descending. It always walks the tree ascending and
// reverses the result for descending scans, sidestepping the inclusive/
// exclusive bound asymmetry between btree's AscendRange and DescendRange.
func (s *Store) scan(begin, end []byte, reverse bool) []kvs.Entry {
	s.mu.Lock()
	var out []kvs.Entry
	s.tree.AscendRange(&item{key: begin}, &item{key: end}, func(i btree.Item) bool {
		it := i.(*item)
		out = append(out, kvs.Entry{Key: append([]byte{}, it.key...), Value: append([]byte{}, it.value...)})
		return true
	})
	s.mu.Unlock()
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (s *Store) nextCommitOrder() [10]byte {
	n := atomic.AddUint64(&s.commitCounter, 1)
	var b [10]byte
	binary.BigEndian.PutUint64(b[2:], n)
	return b
}
