// Package iterator implements the two composable iterators the read path
// is built from: a two-level iterator (outer "index" entries each
// producing an inner iterator of payloads) and a k-way merging iterator.
// internal/sstable.TableIterator hand-rolls its own index/block
// composition because a table's index and data blocks share one file and
// one comparator; this package's TwoLevelIterator is the reusable form
// used where the inner iterators come from different sources entirely,
// such as internal/version's level iterator (file list, then per-file SST
// iterator).
package iterator

import "github.com/Priyanshu23/flashkv/internal/ikey"

// Iterator is the shape every internal-key iterator in this store presents:
// memtable.Iterator, sstable.TableIterator, MergingIterator and
// TwoLevelIterator all satisfy it, which is what lets them compose freely.
type Iterator interface {
	Valid() bool
	Key() ikey.Key
	Value() []byte
	Next()
	SeekToFirst()
	Seek(target ikey.Key)
}

// IndexIterator is the outer layer of a two-level iterator: it walks a
// sequence of index entries, each of which can be turned into an inner
// Iterator over that entry's payloads.
type IndexIterator interface {
	Valid() bool
	Next()
	SeekToFirst()
	Seek(target ikey.Key)
	// Child returns the inner iterator for the entry the index iterator is
	// currently positioned at. Called only while Valid is true.
	Child() (Iterator, error)
}

// TwoLevelIterator composes an IndexIterator with the inner iterators it
// produces, advancing the outer iterator only once the inner one is
// exhausted.
type TwoLevelIterator struct {
	index IndexIterator
	inner Iterator
	err   error
}

// NewTwoLevelIterator builds a two-level iterator over index.
func NewTwoLevelIterator(index IndexIterator) *TwoLevelIterator {
	return &TwoLevelIterator{index: index}
}

// Err returns the first error encountered while materializing an inner
// iterator, if any.
func (it *TwoLevelIterator) Err() error { return it.err }

func (it *TwoLevelIterator) setChild() {
	it.inner = nil
	if it.err != nil || !it.index.Valid() {
		return
	}
	child, err := it.index.Child()
	if err != nil {
		it.err = err
		return
	}
	it.inner = child
}

// skipEmpty advances the outer iterator forward past index entries whose
// inner iterator turns out to hold no (or no more) matching entries.
func (it *TwoLevelIterator) skipEmpty() {
	for it.err == nil && (it.inner == nil || !it.inner.Valid()) {
		if !it.index.Valid() {
			it.inner = nil
			return
		}
		it.index.Next()
		it.setChild()
		if it.inner != nil {
			it.inner.SeekToFirst()
		}
	}
}

// SeekToFirst positions the iterator at the overall first entry.
func (it *TwoLevelIterator) SeekToFirst() {
	it.index.SeekToFirst()
	it.setChild()
	if it.inner != nil {
		it.inner.SeekToFirst()
	}
	it.skipEmpty()
}

// Seek positions the iterator at the smallest entry >= target.
func (it *TwoLevelIterator) Seek(target ikey.Key) {
	it.index.Seek(target)
	it.setChild()
	if it.inner != nil {
		it.inner.Seek(target)
	}
	it.skipEmpty()
}

// Valid reports whether the iterator is positioned at an entry.
func (it *TwoLevelIterator) Valid() bool { return it.err == nil && it.inner != nil && it.inner.Valid() }

// Key returns the current entry's internal key. Valid must be true.
func (it *TwoLevelIterator) Key() ikey.Key { return it.inner.Key() }

// Value returns the current entry's value. Valid must be true.
func (it *TwoLevelIterator) Value() []byte { return it.inner.Value() }

// Next advances to the following entry, rolling over to the next index
// entry's inner iterator as needed.
func (it *TwoLevelIterator) Next() {
	if it.inner == nil {
		return
	}
	it.inner.Next()
	it.skipEmpty()
}
