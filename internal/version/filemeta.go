// Package version implements the Version / VersionSet / manifest layer: the
// per-level file list, the immutable Version snapshots built from a stream
// of edits, and the manifest log those edits are persisted to. It is the
// boundary between "what SSTs exist" and "what the DB believes exists".
package version

import "github.com/Priyanshu23/flashkv/internal/ikey"

// NumLevels is the number of levels a Version tracks. Level 0 may hold
// overlapping files; levels 1..NumLevels-1 hold pairwise-disjoint files
// sorted by smallest key. Nothing here moves files past level 0 yet, but
// the level count is part of the on-disk format a recovering process must
// agree on.
const NumLevels = 7

// FileMetadata describes one immutable SST file. Uniquely identified by
// FileNum.
type FileMetadata struct {
	FileNum  uint64
	FileSize int64
	Smallest ikey.Key
	Largest  ikey.Key
	Level    int
}

// Overlaps reports whether f's user-key range intersects [smallest, largest]
// under cmp. A nil bound is treated as unbounded on that side.
func (f *FileMetadata) Overlaps(cmp ikey.Comparator, smallest, largest []byte) bool {
	if largest != nil && cmp.Compare(f.Smallest.UserKey(), largest) > 0 {
		return false
	}
	if smallest != nil && cmp.Compare(f.Largest.UserKey(), smallest) < 0 {
		return false
	}
	return true
}
