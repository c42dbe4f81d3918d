package memkv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/reusee/stacktester/kv"
)

const (
	MaxKeySize         = 10000
	MaxTransactionSize = 10000000

	DefaultRetainVersions = 5000000
)

// keys at or beyond this bound are system keys
const legalEnd = "\xff"

const tenantMapPrefix = "\xff/tenant/"

type entry struct {
	version int64
	value   []byte
	present bool
}

type history []entry

func (h history) at(version int64) ([]byte, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].version <= version {
			return h[i].value, h[i].present
		}
	}
	return nil, false
}

type keyRange struct {
	begin string
	end   string
}

func (r keyRange) intersects(o keyRange) bool {
	return r.begin < o.end && o.begin < r.end
}

type commitRecord struct {
	version int64
	writes  []keyRange
}

// Change is one key written by a commit. Deleted changes carry no value.
type Change struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// Persister receives every commit before it becomes visible.
// A non-nil error aborts the commit.
type Persister func(version int64, changes []Change) error

// Store is an in-memory multi-version key-value store with optimistic concurrency.
type Store struct {
	mu      sync.RWMutex
	data    *redblacktree.Tree // string -> history
	version int64
	commits []commitRecord

	retain    int64
	persister Persister
}

var _ kv.Database = new(Store)

type Option func(*Store)

// RetainVersions sets how many versions behind the latest a read version may be.
func RetainVersions(n int64) Option {
	return func(s *Store) {
		s.retain = n
	}
}

func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

func New(options ...Option) *Store {
	s := &Store{
		data:   redblacktree.NewWith(utils.StringComparator),
		retain: DefaultRetainVersions,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Version returns the latest committed version.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Load seeds committed state at version. Existing keys are overwritten.
func (s *Store) Load(version int64, entries iter.Seq2[[]byte, []byte]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.version {
		s.version = version
	}
	for key, value := range entries {
		s.data.Put(string(key), history{{
			version: s.version,
			value:   bytes.Clone(value),
			present: true,
		}})
	}
}

func (s *Store) CreateTransaction() (kv.Transaction, error) {
	return newTransaction(s, nil), nil
}

// must hold s.mu
func (s *Store) oldestReadable() int64 {
	return s.version - s.retain
}

// must hold s.mu
func (s *Store) latest(key string) ([]byte, bool) {
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false
	}
	return v.(history).at(s.version)
}

// must hold s.mu
func (s *Store) valueAt(key string, version int64) ([]byte, bool) {
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false
	}
	return v.(history).at(version)
}

// must hold s.mu
func (s *Store) conflicts(readVersion int64, reads []keyRange) bool {
	if len(reads) == 0 {
		return false
	}
	i, _ := slices.BinarySearchFunc(s.commits, readVersion+1, func(c commitRecord, v int64) int {
		switch {
		case c.version < v:
			return -1
		case c.version > v:
			return 1
		}
		return 0
	})
	for _, c := range s.commits[i:] {
		for _, w := range c.writes {
			for _, r := range reads {
				if w.intersects(r) {
					return true
				}
			}
		}
	}
	return false
}

// install publishes changes at the next version. must hold s.mu for writing
func (s *Store) install(changes []Change, writes []keyRange) (int64, error) {
	version := s.version + 1
	if s.persister != nil {
		if err := s.persister(version, changes); err != nil {
			return 0, fmt.Errorf("persist version %d: %w", version, err)
		}
	}

	cutoff := version - s.retain
	for _, change := range changes {
		key := string(change.Key)
		var h history
		if v, ok := s.data.Get(key); ok {
			h = v.(history)
		} else if change.Deleted {
			continue
		}
		h = append(h, entry{
			version: version,
			value:   change.Value,
			present: !change.Deleted,
		})
		h = prune(h, cutoff)
		if len(h) == 1 && !h[0].present && h[0].version <= cutoff {
			s.data.Remove(key)
			continue
		}
		s.data.Put(key, h)
	}

	s.commits = append(s.commits, commitRecord{
		version: version,
		writes:  writes,
	})
	drop := 0
	for drop < len(s.commits) && s.commits[drop].version <= cutoff {
		drop++
	}
	s.commits = s.commits[drop:]

	s.version = version
	return version, nil
}

// prune drops entries no read version at or after cutoff can observe
func prune(h history, cutoff int64) history {
	i := 0
	for i+1 < len(h) && h[i+1].version <= cutoff {
		i++
	}
	return h[i:]
}

// keysIn iterates tree keys in [begin, end)
func keysIn(tree *redblacktree.Tree, begin, end string, reverse bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		if begin >= end {
			return
		}
		if !reverse {
			node, _ := tree.Ceiling(begin)
			if node == nil {
				return
			}
			it := tree.IteratorAt(node)
			for {
				key := it.Key().(string)
				if key >= end {
					return
				}
				if !yield(key) {
					return
				}
				if !it.Next() {
					return
				}
			}
		}

		node, _ := tree.Floor(end)
		if node == nil {
			return
		}
		it := tree.IteratorAt(node)
		if it.Key().(string) >= end {
			if !it.Prev() {
				return
			}
		}
		for {
			key := it.Key().(string)
			if key < begin {
				return
			}
			if !yield(key) {
				return
			}
			if !it.Prev() {
				return
			}
		}
	}
}

func encodeVersion(version int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(version))
}

func versionstampOf(version int64) []byte {
	// 8-byte commit version followed by a zero batch number
	return append(encodeVersion(version), 0, 0)
}
