// Package cache bounds the number of simultaneously open SST file handles.
// Every data-block read on the hot path goes through here rather than
// opening the backing file directly, so repeated lookups into the same SST
// don't re-pay footer/index/filter decoding.
package cache

import (
	"fmt"
	"sync"

	"github.com/Priyanshu23/flashkv/internal/filenames"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/sstable"
	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is what the LRU stores per file number: the opened table plus the
// file handle backing it, so eviction can close the file.
type entry struct {
	table *sstable.Table
	file  sstable.RandomAccessFile
}

// TableCache is a bounded, thread-safe cache of opened SSTs keyed by file
// number, backed by github.com/hashicorp/golang-lru/v2; the least recently
// used table's file handle is closed on eviction.
type TableCache struct {
	dir string
	cmp ikey.InternalComparator

	mu    sync.Mutex
	inner *lru.Cache[uint64, *entry]
}

// New creates a table cache rooted at dir with capacity entries.
func New(dir string, cmp ikey.InternalComparator, capacity int) (*TableCache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	tc := &TableCache{dir: dir, cmp: cmp}
	inner, err := lru.NewWithEvict(capacity, tc.onEvict)
	if err != nil {
		return nil, fmt.Errorf("cache: create LRU: %w", err)
	}
	tc.inner = inner
	return tc, nil
}

func (tc *TableCache) onEvict(_ uint64, e *entry) {
	if e != nil && e.file != nil {
		e.file.Close()
	}
}

// FindTable returns the opened Table for fileNum, opening and caching it on
// a miss.
func (tc *TableCache) FindTable(fileNum uint64) (*sstable.Table, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if e, ok := tc.inner.Get(fileNum); ok {
		return e.table, nil
	}

	path := filenames.TableFileName(tc.dir, fileNum)
	f, err := sstable.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: open table %d: %w", fileNum, err)
	}
	table, err := sstable.Open(f, tc.cmp)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cache: parse table %d: %w", fileNum, err)
	}

	tc.inner.Add(fileNum, &entry{table: table, file: f})
	return table, nil
}

// Get performs a point lookup in the named SST, consulting the cache to
// avoid re-opening the file.
func (tc *TableCache) Get(fileNum uint64, target ikey.Key) ([]byte, ikey.Kind, bool, error) {
	table, err := tc.FindTable(fileNum)
	if err != nil {
		return nil, 0, false, err
	}
	return table.Get(target)
}

// NewIterator returns a fresh iterator over the named SST.
func (tc *TableCache) NewIterator(fileNum uint64) (*sstable.TableIterator, error) {
	table, err := tc.FindTable(fileNum)
	if err != nil {
		return nil, err
	}
	return table.NewIterator(), nil
}

// Evict drops fileNum from the cache, e.g. after the obsolete-file sweep
// deletes it.
func (tc *TableCache) Evict(fileNum uint64) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.inner.Remove(fileNum)
}

// Close evicts every cached entry, closing their backing files.
func (tc *TableCache) Close() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.inner.Purge()
}
