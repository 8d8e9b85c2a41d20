package sstable

import (
	"fmt"
	"testing"

	"github.com/Priyanshu23/flashkv/internal/ikey"
)

// memWriter is a writerAtCloser backed by a growable in-memory buffer, for
// building tables entirely in memory in tests.
type memWriter struct {
	buf []byte
}

func (w *memWriter) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(w.buf)) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[off:], p)
	return len(p), nil
}

func (w *memWriter) Close() error { return nil }

func buildTable(t *testing.T, entries [][2]string, opts Options) (*Table, FileMetadata) {
	t.Helper()
	w := &memWriter{}
	tb := NewTableBuilder(w, opts)
	cmp := ikey.NewInternalComparator(ikey.BytewiseComparator{})

	var seq uint64 = 1
	for _, kv := range entries {
		ik := ikey.Make([]byte(kv[0]), seq, ikey.KindValue)
		if err := tb.Add(ik, []byte(kv[1])); err != nil {
			t.Fatalf("Add: %v", err)
		}
		seq++
	}
	meta, err := tb.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	table, err := Open(NewMemFile(w.buf), cmp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return table, meta
}

func TestTableBuilderRoundTrip(t *testing.T) {
	entries := [][2]string{
		{"apple", "1"}, {"banana", "2"}, {"cherry", "3"},
		{"date", "4"}, {"eggplant", "5"},
	}
	table, meta := buildTable(t, entries, Options{BlockSize: 1})

	cmp := ikey.NewInternalComparator(ikey.BytewiseComparator{})
	if cmp.UserCmp.Compare(meta.Smallest.UserKey(), []byte("apple")) != 0 {
		t.Fatalf("smallest = %q", meta.Smallest.UserKey())
	}
	if cmp.UserCmp.Compare(meta.Largest.UserKey(), []byte("eggplant")) != 0 {
		t.Fatalf("largest = %q", meta.Largest.UserKey())
	}

	for _, kv := range entries {
		lookup := ikey.LookupKey([]byte(kv[0]), ikey.MaxSequence)
		val, kind, ok, err := table.Get(lookup)
		if err != nil {
			t.Fatalf("Get(%q): %v", kv[0], err)
		}
		if !ok || kind != ikey.KindValue || string(val) != kv[1] {
			t.Fatalf("Get(%q) = (%q, %v, %v)", kv[0], val, kind, ok)
		}
	}

	_, _, ok, err := table.Get(ikey.LookupKey([]byte("missing"), ikey.MaxSequence))
	if err != nil || ok {
		t.Fatalf("Get(missing) = (ok=%v, err=%v)", ok, err)
	}
}

func TestTableIteratorAscendingAcrossBlocks(t *testing.T) {
	var entries [][2]string
	for i := 0; i < 200; i++ {
		entries = append(entries, [2]string{fmt.Sprintf("key%04d", i), fmt.Sprintf("val%04d", i)})
	}
	table, _ := buildTable(t, entries, Options{BlockSize: 256})

	it := table.NewIterator()
	it.SeekToFirst()
	count := 0
	for it.Valid() {
		want := entries[count]
		if string(it.Key().UserKey()) != want[0] || string(it.Value()) != want[1] {
			t.Fatalf("entry %d: got (%q, %q) want %v", count, it.Key().UserKey(), it.Value(), want)
		}
		count++
		it.Next()
	}
	if count != len(entries) {
		t.Fatalf("got %d entries, want %d", count, len(entries))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
}

// TestTableGetOldSequenceAcrossBlockSplit writes many entries for one user
// key (descending sequence, ascending internal-key order) with a tiny block
// size so the run splits across data blocks, then looks the key up at a low
// snapshot sequence. The matching entry lives in a later block than the
// first one holding the user key, so the index must route past the earlier
// blocks.
func TestTableGetOldSequenceAcrossBlockSplit(t *testing.T) {
	w := &memWriter{}
	tb := NewTableBuilder(w, Options{BlockSize: 1})
	cmp := ikey.NewInternalComparator(ikey.BytewiseComparator{})

	for seq := uint64(9); seq >= 1; seq-- {
		ik := ikey.Make([]byte("dup"), seq, ikey.KindValue)
		if err := tb.Add(ik, []byte(fmt.Sprintf("v%d", seq))); err != nil {
			t.Fatalf("Add seq %d: %v", seq, err)
		}
	}
	if _, err := tb.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	table, err := Open(NewMemFile(w.buf), cmp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for snap := uint64(1); snap <= 9; snap++ {
		val, kind, ok, err := table.Get(ikey.LookupKey([]byte("dup"), snap))
		if err != nil {
			t.Fatalf("Get at snapshot %d: %v", snap, err)
		}
		want := fmt.Sprintf("v%d", snap)
		if !ok || kind != ikey.KindValue || string(val) != want {
			t.Fatalf("Get at snapshot %d = (%q, %v, %v), want %q", snap, val, kind, ok, want)
		}
	}
}

func TestTableBloomFilterRejectsAbsentKey(t *testing.T) {
	entries := [][2]string{{"present", "v"}}
	table, _ := buildTable(t, entries, Options{FilterExpectedEntries: 10})

	if table.MaybeContains([]byte("present")) != true {
		t.Fatal("bloom filter rejected a present key")
	}
	// Absent keys may occasionally false-positive, but Get must still be
	// correct regardless of what MaybeContains reports.
	_, _, ok, err := table.Get(ikey.LookupKey([]byte("absent"), ikey.MaxSequence))
	if err != nil || ok {
		t.Fatalf("Get(absent) = (ok=%v, err=%v)", ok, err)
	}
}

type renamedComparator struct{ ikey.BytewiseComparator }

func (renamedComparator) Name() string { return "test.RenamedComparator" }

func TestOpenRejectsMismatchedComparator(t *testing.T) {
	w := &memWriter{}
	tb := NewTableBuilder(w, Options{Comparator: renamedComparator{}})
	if err := tb.Add(ikey.Make([]byte("k"), 1, ikey.KindValue), []byte("v")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := tb.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	cmp := ikey.NewInternalComparator(ikey.BytewiseComparator{})
	if _, err := Open(NewMemFile(w.buf), cmp); err == nil {
		t.Fatal("expected Open to reject a table built with a different comparator")
	}
}

func TestFooterRoundTrip(t *testing.T) {
	f := Footer{
		IndexHandle:     BlockHandle{Offset: 10, Size: 20},
		MetaindexHandle: BlockHandle{Offset: 40, Size: 5},
		Magic:           Magic,
	}
	buf := f.EncodeTo()
	if len(buf) != FooterLen {
		t.Fatalf("footer length = %d, want %d", len(buf), FooterLen)
	}
	got, err := DecodeFooter(buf)
	if err != nil {
		t.Fatalf("DecodeFooter: %v", err)
	}
	if got != f {
		t.Fatalf("got %+v want %+v", got, f)
	}
}

func TestFooterBadMagic(t *testing.T) {
	f := Footer{Magic: 0xdeadbeef}
	_, err := DecodeFooter(f.EncodeTo())
	if err != ErrBadMagic {
		t.Fatalf("got %v, want ErrBadMagic", err)
	}
}

func TestEmptyTableBuilderIsNoOp(t *testing.T) {
	w := &memWriter{}
	tb := NewTableBuilder(w, Options{})
	if !tb.Empty() {
		t.Fatal("expected Empty() before any Add")
	}
	if _, err := tb.Finish(); err != nil {
		t.Fatalf("Finish on empty builder: %v", err)
	}
}
