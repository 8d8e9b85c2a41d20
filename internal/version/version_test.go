package version

import (
	"os"
	"testing"

	"github.com/Priyanshu23/flashkv/internal/cache"
	"github.com/Priyanshu23/flashkv/internal/filenames"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/sstable"
)

// writeTable builds a real on-disk SST at dir's conventional path for
// fileNum, containing entries in ascending key order, and returns its
// FileMetadata translated into the version package's own type.
func writeTable(t *testing.T, dir string, fileNum uint64, cmp ikey.InternalComparator, entries [][2]string) *FileMetadata {
	t.Helper()
	path := filenames.TableFileName(dir, fileNum)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("create table file: %v", err)
	}

	tb := sstable.NewTableBuilder(f, sstable.Options{Comparator: cmp.UserCmp})
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

	return &FileMetadata{FileNum: fileNum, FileSize: meta.FileSize, Smallest: meta.Smallest, Largest: meta.Largest}
}

func newTestVersion(t *testing.T) (*Version, string, ikey.InternalComparator) {
	t.Helper()
	dir := t.TempDir()
	cmp := ikey.NewInternalComparator(ikey.BytewiseComparator{})
	tc, err := cache.New(dir, cmp, 10)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return NewVersion(cmp, tc), dir, cmp
}

func TestVersionGetFindsValueInLevel1(t *testing.T) {
	v, dir, cmp := newTestVersion(t)
	f := writeTable(t, dir, 1, cmp, [][2]string{{"a", "1"}, {"m", "2"}, {"z", "3"}})
	f.Level = 1
	v.Files[1] = []*FileMetadata{f}

	value, found, err := v.Get(ikey.LookupKey([]byte("m"), ikey.MaxSequence))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(value) != "2" {
		t.Fatalf("got (%q, %v)", value, found)
	}

	_, found, err = v.Get(ikey.LookupKey([]byte("missing"), ikey.MaxSequence))
	if err != nil || found {
		t.Fatalf("expected not found, got (%v, %v)", found, err)
	}
}

func TestVersionGetPrefersNewerLevel0File(t *testing.T) {
	v, dir, cmp := newTestVersion(t)
	older := writeTable(t, dir, 1, cmp, [][2]string{{"k", "old"}})
	newer := writeTable(t, dir, 2, cmp, [][2]string{{"k", "new"}})
	v.Files[0] = []*FileMetadata{older, newer}

	value, found, err := v.Get(ikey.LookupKey([]byte("k"), ikey.MaxSequence))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(value) != "new" {
		t.Fatalf("got (%q, %v), expected newer file (higher file number) to win", value, found)
	}
}

func TestVersionGetMasksDeletedKey(t *testing.T) {
	dir := t.TempDir()
	cmp := ikey.NewInternalComparator(ikey.BytewiseComparator{})
	tc, err := cache.New(dir, cmp, 10)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	v := NewVersion(cmp, tc)

	path := filenames.TableFileName(dir, 1)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tb := sstable.NewTableBuilder(file, sstable.Options{Comparator: ikey.BytewiseComparator{}})
	if err := tb.Add(ikey.Make([]byte("k"), 1, ikey.KindDeletion), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	meta, err := tb.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	v.Files[1] = []*FileMetadata{{FileNum: 1, FileSize: meta.FileSize, Smallest: meta.Smallest, Largest: meta.Largest}}

	_, found, err := v.Get(ikey.LookupKey([]byte("k"), ikey.MaxSequence))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected a tombstone hit to report not found")
	}
}

func TestGetOverlappingInputsExpandsLevel0FixedPoint(t *testing.T) {
	v, dir, cmp := newTestVersion(t)
	a := writeTable(t, dir, 1, cmp, [][2]string{{"b", "1"}, {"e", "2"}})
	b := writeTable(t, dir, 2, cmp, [][2]string{{"d", "3"}, {"h", "4"}})
	c := writeTable(t, dir, 3, cmp, [][2]string{{"z", "5"}})
	v.Files[0] = []*FileMetadata{a, b, c}

	out := v.GetOverlappingInputs(0, []byte("c"), []byte("f"))
	if len(out) != 2 {
		t.Fatalf("expected the range to expand to cover files a and b, got %d files", len(out))
	}
}

func TestGetOverlappingInputsUpperLevelNoExpansion(t *testing.T) {
	v, dir, cmp := newTestVersion(t)
	a := writeTable(t, dir, 1, cmp, [][2]string{{"a", "1"}})
	b := writeTable(t, dir, 2, cmp, [][2]string{{"m", "2"}})
	a.Level, b.Level = 1, 1
	v.Files[1] = []*FileMetadata{a, b}

	out := v.GetOverlappingInputs(1, []byte("m"), []byte("m"))
	if len(out) != 1 || out[0].FileNum != b.FileNum {
		t.Fatalf("got %+v", out)
	}
}

func TestNewLevelIteratorLevel0MergesNewestFirst(t *testing.T) {
	v, dir, cmp := newTestVersion(t)
	older := writeTable(t, dir, 1, cmp, [][2]string{{"k", "old"}})
	newer := writeTable(t, dir, 2, cmp, [][2]string{{"k", "new"}})
	v.Files[0] = []*FileMetadata{older, newer}

	it, err := v.NewLevelIterator(0)
	if err != nil {
		t.Fatalf("NewLevelIterator: %v", err)
	}
	it.SeekToFirst()
	if !it.Valid() || string(it.Value()) != "new" {
		t.Fatalf("expected newest file's entry first, got %q", it.Value())
	}
}

func TestNewLevelIteratorUpperLevelWalksFilesInOrder(t *testing.T) {
	v, dir, cmp := newTestVersion(t)
	a := writeTable(t, dir, 1, cmp, [][2]string{{"a", "1"}, {"b", "2"}})
	b := writeTable(t, dir, 2, cmp, [][2]string{{"c", "3"}, {"d", "4"}})
	v.Files[1] = []*FileMetadata{a, b}

	it, err := v.NewLevelIterator(1)
	if err != nil {
		t.Fatalf("NewLevelIterator: %v", err)
	}

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key().UserKey()))
	}
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
