package version

import "sort"

// Builder accumulates a sequence of Edits on top of a base Version and
// produces the resulting Version; manifest replay uses it to fold many
// edits into one reconstructed Version.
type Builder struct {
	base    *Version
	added   [NumLevels]map[uint64]*FileMetadata
	deleted [NumLevels]map[uint64]bool
}

// NewBuilder starts a builder from base, which may be an empty Version.
func NewBuilder(base *Version) *Builder {
	b := &Builder{base: base}
	for l := 0; l < NumLevels; l++ {
		b.added[l] = make(map[uint64]*FileMetadata)
		b.deleted[l] = make(map[uint64]bool)
	}
	return b
}

// Apply folds one Edit's file additions and deletions into the builder.
func (b *Builder) Apply(e *Edit) {
	for _, df := range e.DeletedFiles {
		b.deleted[df.level][df.fileNum] = true
		delete(b.added[df.level], df.fileNum)
	}
	for _, f := range e.NewFiles {
		f := f
		delete(b.deleted[f.Level], f.FileNum)
		b.added[f.Level][f.FileNum] = &f
	}
}

// SaveTo materialises the accumulated edits into a new Version: base's files
// minus anything deleted, plus anything added (an added file replaces a base
// file with the same number), with levels >= 1 re-sorted by smallest key.
func (b *Builder) SaveTo(out *Version) {
	for level := 0; level < NumLevels; level++ {
		var files []*FileMetadata
		if b.base != nil {
			for _, f := range b.base.Files[level] {
				if !b.deleted[level][f.FileNum] && b.added[level][f.FileNum] == nil {
					files = append(files, f)
				}
			}
		}
		for _, f := range b.added[level] {
			files = append(files, f)
		}
		if level > 0 {
			sort.Slice(files, func(i, j int) bool {
				return out.cmp.UserCmp.Compare(files[i].Smallest.UserKey(), files[j].Smallest.UserKey()) < 0
			})
		} else {
			sort.Slice(files, func(i, j int) bool { return files[i].FileNum < files[j].FileNum })
		}
		out.Files[level] = files
	}
}
