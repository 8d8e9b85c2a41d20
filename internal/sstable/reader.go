package sstable

import (
	"bytes"
	"fmt"

	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/bits-and-blooms/bloom/v3"
)

// internalKeyComparator adapts an ikey.InternalComparator to the
// sstable.Comparator a Block needs. Both the data blocks and the index
// block are keyed by internal keys (index separators carry a maximal
// trailer), so they share the same Block/Iterator machinery; only the
// metaindex block, keyed by plain strings, uses userKeyComparator.
type userKeyComparator struct {
	cmp ikey.Comparator
}

func (u userKeyComparator) Compare(a, b []byte) int { return u.cmp.Compare(a, b) }

type internalKeyComparator struct {
	cmp ikey.InternalComparator
}

func (c internalKeyComparator) Compare(a, b []byte) int {
	return c.cmp.Compare(ikey.Key(a), ikey.Key(b))
}

// Table is an opened, immutable SST ready to serve point lookups and
// iteration.
type Table struct {
	file RandomAccessFile
	cmp  ikey.InternalComparator

	index  *Block
	filter *bloom.BloomFilter // nil when the table has no filter block
}

// Open reads the footer of an SST backed by f and loads its index and
// (when present) filter blocks into memory.
func Open(f RandomAccessFile, cmp ikey.InternalComparator) (*Table, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	if size < FooterLen {
		return nil, fmt.Errorf("sstable: file too small to hold a footer")
	}

	footerBuf := make([]byte, FooterLen)
	if _, err := f.ReadAt(footerBuf, size-FooterLen); err != nil {
		return nil, err
	}
	footer, err := DecodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}

	indexContent, err := ReadBlock(f, footer.IndexHandle)
	if err != nil {
		return nil, err
	}
	index, err := ParseBlock(indexContent)
	if err != nil {
		return nil, err
	}

	t := &Table{file: f, cmp: cmp, index: index}

	metaContent, err := ReadBlock(f, footer.MetaindexHandle)
	if err != nil {
		return nil, err
	}
	metaBlock, err := ParseBlock(metaContent)
	if err != nil {
		return nil, err
	}
	if nameBytes, ok := lookupMetaindex(metaBlock, comparatorKey); ok {
		if got := string(nameBytes); got != cmp.UserCmp.Name() {
			return nil, fmt.Errorf("sstable: table built with comparator %q, opened with %q", got, cmp.UserCmp.Name())
		}
	}
	if handleBytes, ok := lookupMetaindex(metaBlock, bloomFilterKey); ok {
		filterHandle, _, err := DecodeBlockHandle(handleBytes)
		if err != nil {
			return nil, err
		}
		filterContent, err := ReadBlock(f, filterHandle)
		if err != nil {
			return nil, err
		}
		filter := &bloom.BloomFilter{}
		if _, err := filter.ReadFrom(bytes.NewReader(filterContent)); err != nil {
			return nil, fmt.Errorf("sstable: decode bloom filter: %w", err)
		}
		t.filter = filter
	}

	return t, nil
}

func lookupMetaindex(b *Block, key string) ([]byte, bool) {
	it := b.NewIterator(userKeyComparator{ikey.BytewiseComparator{}})
	it.Seek([]byte(key))
	if it.Valid() && string(it.Key()) == key {
		return it.Value(), true
	}
	return nil, false
}

// MaybeContains reports whether userKey might be present, consulting the
// bloom filter block when one exists. A false return is authoritative (the
// key is definitely absent); a true return requires an actual block probe.
func (t *Table) MaybeContains(userKey []byte) bool {
	if t.filter == nil {
		return true
	}
	return t.filter.Test(bloomKey(userKey))
}

// Get returns the value (and kind) of the newest entry in the table whose
// internal key is >= target and whose user key matches target's: it seeks
// the index block to find the data block whose separator is >= target,
// reads that block, and seeks within it.
func (t *Table) Get(target ikey.Key) (value []byte, kind ikey.Kind, ok bool, err error) {
	if !t.MaybeContains(target.UserKey()) {
		return nil, 0, false, nil
	}

	indexIt := t.index.NewIterator(internalKeyComparator{t.cmp})
	indexIt.Seek(target)
	if !indexIt.Valid() {
		return nil, 0, false, nil
	}

	handle, _, err := DecodeBlockHandle(indexIt.Value())
	if err != nil {
		return nil, 0, false, err
	}

	content, err := ReadBlock(t.file, handle)
	if err != nil {
		return nil, 0, false, err
	}
	block, err := ParseBlock(content)
	if err != nil {
		return nil, 0, false, err
	}

	dataIt := block.NewIterator(internalKeyComparator{t.cmp})
	dataIt.Seek(target)
	if !dataIt.Valid() {
		return nil, 0, false, nil
	}
	foundKey := ikey.Key(dataIt.Key())
	if t.cmp.UserCmp.Compare(foundKey.UserKey(), target.UserKey()) != 0 {
		return nil, 0, false, nil
	}
	return dataIt.Value(), foundKey.Kind(), true, nil
}

// NewIterator returns a two-level iterator over every (internalKey, value)
// pair in the table, in ascending order.
func (t *Table) NewIterator() *TableIterator {
	return &TableIterator{table: t, indexIt: t.index.NewIterator(internalKeyComparator{t.cmp})}
}

// TableIterator composes the index block iterator with a data block
// iterator, advancing the outer (index) iterator only when the inner
// (data) iterator is exhausted.
type TableIterator struct {
	table   *Table
	indexIt *Iterator
	dataIt  *Iterator
	err     error
}

func (it *TableIterator) Err() error { return it.err }

// SeekToFirst positions at the table's first entry.
func (it *TableIterator) SeekToFirst() {
	it.indexIt.SeekToFirst()
	it.loadData()
	if it.dataIt != nil {
		it.dataIt.SeekToFirst()
	}
	it.skipEmptyForward()
}

// Seek positions at the smallest entry >= target.
func (it *TableIterator) Seek(target ikey.Key) {
	it.indexIt.Seek(target)
	it.loadData()
	if it.dataIt != nil {
		it.dataIt.Seek(target)
	}
	it.skipEmptyForward()
}

func (it *TableIterator) loadData() {
	it.dataIt = nil
	if !it.indexIt.Valid() {
		return
	}
	handle, _, err := DecodeBlockHandle(it.indexIt.Value())
	if err != nil {
		it.err = err
		return
	}
	content, err := ReadBlock(it.table.file, handle)
	if err != nil {
		it.err = err
		return
	}
	block, err := ParseBlock(content)
	if err != nil {
		it.err = err
		return
	}
	it.dataIt = block.NewIterator(internalKeyComparator{it.table.cmp})
}

func (it *TableIterator) skipEmptyForward() {
	for it.err == nil && (it.dataIt == nil || !it.dataIt.Valid()) {
		if !it.indexIt.Valid() {
			it.dataIt = nil
			return
		}
		it.indexIt.Next()
		it.loadData()
		if it.dataIt != nil {
			it.dataIt.SeekToFirst()
		}
		if it.dataIt == nil && !it.indexIt.Valid() {
			return
		}
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *TableIterator) Valid() bool { return it.dataIt != nil && it.dataIt.Valid() }

// Key returns the current entry's internal key. Valid must be true.
func (it *TableIterator) Key() ikey.Key { return ikey.Key(it.dataIt.Key()) }

// Value returns the current entry's value. Valid must be true.
func (it *TableIterator) Value() []byte { return it.dataIt.Value() }

// Next advances the iterator, rolling over to the next data block as
// needed.
func (it *TableIterator) Next() {
	if it.dataIt == nil {
		return
	}
	it.dataIt.Next()
	it.skipEmptyForward()
}
