package memtable

import (
	"github.com/Priyanshu23/flashkv/internal/ikey"
)

// LookupResult distinguishes "found a live value", "found a tombstone" and
// "no entry at all". The three-way split matters because a tombstone must
// stop the lookup from falling through to older state.
type LookupResult int

const (
	// NotFound means no entry for the user key exists in this memtable.
	NotFound LookupResult = iota
	// FoundValue means a live value was found.
	FoundValue
	// FoundDeleted means the newest visible entry is a tombstone.
	FoundDeleted
)

// Memtable is the ordered, in-memory map of internal keys to values that
// buffers writes until they are flushed to a level-0 SST.
type Memtable struct {
	list *SkipList
}

// New builds an empty memtable ordered by cmp.
func New(cmp ikey.InternalComparator) *Memtable {
	return &Memtable{list: NewSkipList(cmp)}
}

// Insert always succeeds; a skiplist insert cannot fail short of OOM.
func (m *Memtable) Insert(userKey []byte, seq uint64, kind ikey.Kind, value []byte) {
	m.list.Insert(ikey.Make(userKey, seq, kind), value)
}

// Get seeks to the smallest entry >= lookupInternalKey and classifies the
// result.
func (m *Memtable) Get(lookupInternalKey ikey.Key) ([]byte, LookupResult) {
	value, kind, ok := m.list.Get(lookupInternalKey)
	if !ok {
		return nil, NotFound
	}
	if kind == ikey.KindDeletion {
		return nil, FoundDeleted
	}
	return value, FoundValue
}

// ApproximateMemoryUse returns the monotonic byte-usage counter driving
// rotation.
func (m *Memtable) ApproximateMemoryUse() int64 {
	return m.list.ApproximateMemoryUse()
}

// IsEmpty reports whether the memtable holds no entries.
func (m *Memtable) IsEmpty() bool {
	return m.list.IsEmpty()
}

// NewIterator returns an ascending-order iterator over (internalKey, value)
// pairs, supporting Seek/SeekToFirst/SeekToLast/Next/Prev.
func (m *Memtable) NewIterator() *Iterator {
	return m.list.NewIterator()
}
