package iterator_test

import (
	"testing"

	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/iterator"
	"github.com/Priyanshu23/flashkv/internal/memtable"
)

// sliceIndex is a minimal IndexIterator over a fixed list of memtables,
// standing in for internal/version's levelIndex (one memtable per SST file).
type sliceIndex struct {
	tables []*memtable.Memtable
	pos    int
}

func (s *sliceIndex) Valid() bool  { return s.pos >= 0 && s.pos < len(s.tables) }
func (s *sliceIndex) Next()        { s.pos++ }
func (s *sliceIndex) SeekToFirst() { s.pos = 0 }
func (s *sliceIndex) Child() (iterator.Iterator, error) {
	return s.tables[s.pos].NewIterator(), nil
}
func (s *sliceIndex) Seek(target ikey.Key) {
	cmp := newCmp()
	for s.pos = 0; s.pos < len(s.tables); s.pos++ {
		it := s.tables[s.pos].NewIterator()
		it.SeekToLast()
		if it.Valid() && cmp.Compare(it.Key(), target) >= 0 {
			return
		}
	}
}

func newTable(cmp ikey.InternalComparator, keys ...string) *memtable.Memtable {
	m := memtable.New(cmp)
	for i, k := range keys {
		m.Insert([]byte(k), uint64(i+1), ikey.KindValue, []byte(k))
	}
	return m
}

func TestTwoLevelIteratorWalksAllChildrenInOrder(t *testing.T) {
	cmp := newCmp()
	idx := &sliceIndex{tables: []*memtable.Memtable{
		newTable(cmp, "a", "b"),
		newTable(cmp, "c", "d"),
		newTable(cmp, "e"),
	}}

	it := iterator.NewTwoLevelIterator(idx)
	keys, _ := collect(it)

	want := []string{"a", "b", "c", "d", "e"}
	if len(keys) != len(want) {
		t.Fatalf("got %v want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v want %v", keys, want)
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTwoLevelIteratorSkipsEmptyChildren(t *testing.T) {
	cmp := newCmp()
	idx := &sliceIndex{tables: []*memtable.Memtable{
		newTable(cmp, "a"),
		memtable.New(cmp), // empty, must be skipped over
		newTable(cmp, "b"),
	}}

	it := iterator.NewTwoLevelIterator(idx)
	keys, _ := collect(it)

	want := []string{"a", "b"}
	if len(keys) != len(want) || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("got %v want %v", keys, want)
	}
}

func TestTwoLevelIteratorSeek(t *testing.T) {
	cmp := newCmp()
	idx := &sliceIndex{tables: []*memtable.Memtable{
		newTable(cmp, "a", "b"),
		newTable(cmp, "c", "d"),
	}}

	it := iterator.NewTwoLevelIterator(idx)
	it.Seek(ikey.LookupKey([]byte("c"), ikey.MaxSequence))
	if !it.Valid() || string(it.Key().UserKey()) != "c" {
		t.Fatalf("seek landed on %q", it.Key().UserKey())
	}
}

func TestTwoLevelIteratorEmptyIndex(t *testing.T) {
	idx := &sliceIndex{}
	it := iterator.NewTwoLevelIterator(idx)
	it.SeekToFirst()
	if it.Valid() {
		t.Fatal("expected empty index to yield an invalid iterator")
	}
}
