package version

import (
	"sort"

	"github.com/Priyanshu23/flashkv/internal/cache"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/iterator"
)

// Version is an immutable snapshot of the per-level file sets. Versions
// form a doubly-linked list so a reader can hold an older Version while a
// newer one is installed; only one Version is kept live at a time here, but
// Version never mutates in place, so handing an old *Version to a reader
// and installing a new one underneath it is always safe.
type Version struct {
	cmp   ikey.InternalComparator
	cache *cache.TableCache

	// Files[level] holds that level's file list. Level 0 may overlap and is
	// not required to be sorted; levels 1..NumLevels-1 are pairwise disjoint
	// and sorted ascending by Smallest.
	Files [NumLevels][]*FileMetadata

	prev, next *Version
}

// NewVersion builds an empty Version.
func NewVersion(cmp ikey.InternalComparator, tc *cache.TableCache) *Version {
	return &Version{cmp: cmp, cache: tc}
}

// clone returns a shallow copy of v: the per-level file slices are copied
// (so appends/removals don't alias v's), but FileMetadata pointers are
// shared, since files are themselves immutable once written.
func (v *Version) clone() *Version {
	nv := &Version{cmp: v.cmp, cache: v.cache}
	for l := 0; l < NumLevels; l++ {
		nv.Files[l] = append([]*FileMetadata(nil), v.Files[l]...)
	}
	return nv
}

// Get performs a point lookup for target (already an internal lookup key),
// consulting level 0 newest-file-first and then each level >= 1 via binary
// search. A hit whose kind is Deletion is reported as not found.
func (v *Version) Get(target ikey.Key) (value []byte, found bool, err error) {
	userKey := target.UserKey()

	l0 := append([]*FileMetadata(nil), v.Files[0]...)
	sort.Slice(l0, func(i, j int) bool { return l0[i].FileNum > l0[j].FileNum })
	for _, f := range l0 {
		if !f.Overlaps(v.cmp.UserCmp, userKey, userKey) {
			continue
		}
		val, kind, ok, gerr := v.cache.Get(f.FileNum, target)
		if gerr != nil {
			return nil, false, gerr
		}
		if ok {
			if kind == ikey.KindDeletion {
				return nil, false, nil
			}
			return val, true, nil
		}
	}

	for level := 1; level < NumLevels; level++ {
		f := v.findFile(level, userKey)
		if f == nil {
			continue
		}
		val, kind, ok, gerr := v.cache.Get(f.FileNum, target)
		if gerr != nil {
			return nil, false, gerr
		}
		if ok {
			if kind == ikey.KindDeletion {
				return nil, false, nil
			}
			return val, true, nil
		}
	}

	return nil, false, nil
}

// findFile binary searches level's disjoint, smallest-sorted file list for
// the one file whose range could hold userKey, or nil.
func (v *Version) findFile(level int, userKey []byte) *FileMetadata {
	files := v.Files[level]
	i := sort.Search(len(files), func(i int) bool {
		return v.cmp.UserCmp.Compare(files[i].Largest.UserKey(), userKey) >= 0
	})
	if i >= len(files) {
		return nil
	}
	f := files[i]
	if v.cmp.UserCmp.Compare(f.Smallest.UserKey(), userKey) > 0 {
		return nil
	}
	return f
}

// GetOverlappingInputs collects the files at level whose user-key range
// intersects [smallest, largest]. At level 0, the range is expanded to a
// fixed point whenever an overlapping file extends it, since level 0 files
// may themselves overlap each other. A nil bound is unbounded on that side.
func (v *Version) GetOverlappingInputs(level int, smallest, largest []byte) []*FileMetadata {
	if level != 0 {
		var out []*FileMetadata
		for _, f := range v.Files[level] {
			if f.Overlaps(v.cmp.UserCmp, smallest, largest) {
				out = append(out, f)
			}
		}
		return out
	}

	for {
		var out []*FileMetadata
		expanded := false
		curSmallest, curLargest := smallest, largest
		for _, f := range v.Files[0] {
			if !f.Overlaps(v.cmp.UserCmp, curSmallest, curLargest) {
				continue
			}
			out = append(out, f)
			if curSmallest != nil && v.cmp.UserCmp.Compare(f.Smallest.UserKey(), curSmallest) < 0 {
				smallest = f.Smallest.UserKey()
				expanded = true
			}
			if curLargest != nil && v.cmp.UserCmp.Compare(f.Largest.UserKey(), curLargest) > 0 {
				largest = f.Largest.UserKey()
				expanded = true
			}
		}
		if !expanded {
			return out
		}
	}
}

// NewLevelIterator returns an iterator over every entry in level, in
// ascending internal-key order. For level 0 (files may overlap) this is a
// k-way merge, newest file first so a later dedup pass sees the newest
// version of a key first; for level >= 1 (disjoint, sorted files) it is a
// two-level iterator: file list -> SST iterator.
func (v *Version) NewLevelIterator(level int) (iterator.Iterator, error) {
	if level == 0 {
		files := append([]*FileMetadata(nil), v.Files[0]...)
		sort.Slice(files, func(i, j int) bool { return files[i].FileNum > files[j].FileNum })
		children := make([]iterator.Iterator, 0, len(files))
		for _, f := range files {
			it, err := v.cache.NewIterator(f.FileNum)
			if err != nil {
				return nil, err
			}
			children = append(children, it)
		}
		return iterator.NewMergingIterator(v.cmp, children), nil
	}

	return iterator.NewTwoLevelIterator(&levelIndex{v: v, files: v.Files[level]}), nil
}

// levelIndex adapts a disjoint, sorted file list into an iterator.IndexIterator
// whose "index entries" are files and whose child iterators are each file's
// SST iterator.
type levelIndex struct {
	v     *Version
	files []*FileMetadata
	pos   int
}

func (li *levelIndex) Valid() bool { return li.pos >= 0 && li.pos < len(li.files) }

func (li *levelIndex) Next() { li.pos++ }

func (li *levelIndex) SeekToFirst() { li.pos = 0 }

func (li *levelIndex) Seek(target ikey.Key) {
	userKey := target.UserKey()
	li.pos = sort.Search(len(li.files), func(i int) bool {
		return li.v.cmp.UserCmp.Compare(li.files[i].Largest.UserKey(), userKey) >= 0
	})
}

func (li *levelIndex) Child() (iterator.Iterator, error) {
	return li.v.cache.NewIterator(li.files[li.pos].FileNum)
}
