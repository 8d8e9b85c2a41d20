package iterator

import "github.com/Priyanshu23/flashkv/internal/ikey"

// MergingIterator performs a k-way merge over a fixed set of ordered child
// iterators, yielding the minimum element (by internal-key order) at each
// step. It does not deduplicate entries that share a user key across
// children; that is the caller's job (the newest-wins read path, or a
// future compaction).
//
// The child count in this store is always small (level 0's file count plus
// one per level, or a handful of memtable/table iterators for a snapshot
// scan), so a linear scan for the minimum on each step is simpler than a
// heap and fast enough in practice.
type MergingIterator struct {
	cmp      ikey.InternalComparator
	children []Iterator
	current  int // index into children of the iterator currently selected, or -1
}

// NewMergingIterator builds a merging iterator over children, ordered by
// cmp. children is retained, not copied; callers should not reuse the slice.
func NewMergingIterator(cmp ikey.InternalComparator, children []Iterator) *MergingIterator {
	return &MergingIterator{cmp: cmp, children: children, current: -1}
}

// findSmallest scans all valid children and selects the smallest key,
// breaking ties toward the earlier child in the slice (callers that care
// about recency order their children accordingly, e.g. level 0 newest-first).
func (m *MergingIterator) findSmallest() {
	m.current = -1
	for i, c := range m.children {
		if !c.Valid() {
			continue
		}
		if m.current == -1 || m.cmp.Compare(c.Key(), m.children[m.current].Key()) < 0 {
			m.current = i
		}
	}
}

// SeekToFirst positions every child at its first entry, then selects the
// overall minimum.
func (m *MergingIterator) SeekToFirst() {
	for _, c := range m.children {
		c.SeekToFirst()
	}
	m.findSmallest()
}

// Seek positions every child at its smallest entry >= target, then selects
// the overall minimum.
func (m *MergingIterator) Seek(target ikey.Key) {
	for _, c := range m.children {
		c.Seek(target)
	}
	m.findSmallest()
}

// Valid reports whether any child is currently selected.
func (m *MergingIterator) Valid() bool { return m.current >= 0 }

// Key returns the current entry's internal key. Valid must be true.
func (m *MergingIterator) Key() ikey.Key { return m.children[m.current].Key() }

// Value returns the current entry's value. Valid must be true.
func (m *MergingIterator) Value() []byte { return m.children[m.current].Value() }

// Next advances the selected child and re-selects the overall minimum.
func (m *MergingIterator) Next() {
	if m.current < 0 {
		return
	}
	m.children[m.current].Next()
	m.findSmallest()
}
