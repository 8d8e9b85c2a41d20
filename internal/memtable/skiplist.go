// Package memtable implements the in-memory sorted map that buffers writes
// before they are durable as an SST: a probabilistic skiplist keyed by
// internal key, lock-free for readers relative to the single writer that
// mutates it.
package memtable

import (
	"math/rand"
	"sync/atomic"
	"unsafe"

	"github.com/Priyanshu23/flashkv/internal/ikey"
)

const (
	// branching is the geometric-sampling branching factor for node height.
	branching = 4
	// maxHeight is the tallest a skiplist node may grow.
	maxHeight = 12
)

type node struct {
	key   ikey.Key
	value []byte
	next  []unsafe.Pointer // *node, one per level this node participates in
}

func (n *node) loadNext(level int) *node {
	return (*node)(atomic.LoadPointer(&n.next[level]))
}

func (n *node) storeNext(level int, v *node) {
	atomic.StorePointer(&n.next[level], unsafe.Pointer(v))
}

// SkipList is the memtable's backing structure: a probabilistic skiplist
// ordered by an ikey.InternalComparator. The only mutator is the DB's
// single write path; concurrent readers only ever load forward pointers, so
// no read-side lock is required.
type SkipList struct {
	cmp    ikey.InternalComparator
	head   *node
	height atomic.Int32 // 1-based count of levels currently in use
	rnd    *rand.Rand

	memUsage atomic.Int64
}

// NewSkipList builds an empty skiplist ordered by cmp.
func NewSkipList(cmp ikey.InternalComparator) *SkipList {
	sl := &SkipList{
		cmp:  cmp,
		head: &node{next: make([]unsafe.Pointer, maxHeight)},
		rnd:  rand.New(rand.NewSource(0xC0FFEE)),
	}
	sl.height.Store(1)
	return sl
}

func (sl *SkipList) randomHeight() int {
	h := 1
	for h < maxHeight && sl.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// findGreaterOrEqual returns, for each level, the last node strictly less
// than key (or head), and the first node >= key at level 0 (or nil).
func (sl *SkipList) findGreaterOrEqual(key ikey.Key, prev []*node) *node {
	x := sl.head
	level := int(sl.height.Load()) - 1
	for {
		next := x.loadNext(level)
		if next != nil && sl.cmp.Compare(next.key, key) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// Insert adds (internalKey, value) to the skiplist. Distinct entries whose
// internal keys differ only in sequence are expected and coexist.
func (sl *SkipList) Insert(internalKey ikey.Key, value []byte) {
	var prev [maxHeight]*node
	for i := range prev {
		prev[i] = sl.head
	}
	sl.findGreaterOrEqual(internalKey, prev[:])

	height := sl.randomHeight()
	if height > int(sl.height.Load()) {
		for i := int(sl.height.Load()); i < height; i++ {
			prev[i] = sl.head
		}
		sl.height.Store(int32(height))
	}

	n := &node{
		key:   internalKey,
		value: value,
		next:  make([]unsafe.Pointer, height),
	}
	for level := 0; level < height; level++ {
		n.storeNext(level, prev[level].loadNext(level))
		prev[level].storeNext(level, n)
	}

	sl.memUsage.Add(int64(len(internalKey) + len(value) + entryOverhead))
}

// entryOverhead approximates the fixed per-entry bookkeeping cost (node
// struct, forward-pointer slice header) folded into ApproximateMemoryUse so
// rotation decisions account for more than just key/value bytes.
const entryOverhead = 48

// Get seeks to the smallest entry with key >= lookupKey. It returns the
// value and true only when that entry's user key matches lookupKey's user
// key; the caller interprets the entry's kind.
func (sl *SkipList) Get(lookupKey ikey.Key) (value []byte, kind ikey.Kind, ok bool) {
	n := sl.findGreaterOrEqual(lookupKey, nil)
	if n == nil {
		return nil, 0, false
	}
	if sl.cmp.UserCmp.Compare(n.key.UserKey(), lookupKey.UserKey()) != 0 {
		return nil, 0, false
	}
	return n.value, n.key.Kind(), true
}

// ApproximateMemoryUse returns a monotonically increasing estimate of bytes
// held by the skiplist, driving memtable rotation.
func (sl *SkipList) ApproximateMemoryUse() int64 {
	return sl.memUsage.Load()
}

// IsEmpty reports whether the skiplist holds no entries.
func (sl *SkipList) IsEmpty() bool {
	return sl.head.loadNext(0) == nil
}

// Iterator walks the skiplist in ascending internal-key order, and supports
// the random-access seeks the two-level/merging iterators need.
type Iterator struct {
	sl  *SkipList
	cur *node
}

// NewIterator returns an Iterator positioned before the first entry; call
// SeekToFirst, SeekToLast or Seek before reading.
func (sl *SkipList) NewIterator() *Iterator {
	return &Iterator{sl: sl}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.cur != nil }

// Key returns the current entry's internal key. Valid must be true.
func (it *Iterator) Key() ikey.Key { return it.cur.key }

// Value returns the current entry's value. Valid must be true.
func (it *Iterator) Value() []byte { return it.cur.value }

// SeekToFirst positions the iterator at the smallest entry.
func (it *Iterator) SeekToFirst() {
	it.cur = it.sl.head.loadNext(0)
}

// SeekToLast positions the iterator at the largest entry, or leaves it
// invalid if the skiplist is empty.
func (it *Iterator) SeekToLast() {
	x := it.sl.head
	level := int(it.sl.height.Load()) - 1
	var last *node
	for {
		next := x.loadNext(level)
		if next != nil {
			x = next
			last = next
			continue
		}
		if level == 0 {
			break
		}
		level--
	}
	it.cur = last
}

// Seek positions the iterator at the smallest entry >= target.
func (it *Iterator) Seek(target ikey.Key) {
	it.cur = it.sl.findGreaterOrEqual(target, nil)
}

// Next advances the iterator. Valid must be true.
func (it *Iterator) Next() {
	it.cur = it.cur.loadNext(0)
}

// Prev moves the iterator to the entry immediately before the current one.
// Valid must be true. Singly-linked levels mean this re-walks from head, so
// it costs O(log n) rather than O(1); acceptable since compaction-free
// scans use Prev rarely compared to Next.
func (it *Iterator) Prev() {
	var prev [maxHeight]*node
	for i := range prev {
		prev[i] = it.sl.head
	}
	it.sl.findGreaterOrEqual(it.cur.key, prev[:])
	if prev[0] == it.sl.head {
		it.cur = nil
		return
	}
	it.cur = prev[0]
}
