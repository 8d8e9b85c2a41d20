package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/Priyanshu23/flashkv/internal/cache"
	"github.com/Priyanshu23/flashkv/internal/filenames"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/record"
)

// VersionSet owns the store's global bookkeeping: the next file number, the
// current and previous WAL numbers, the last assigned sequence, the active
// manifest and its writer, and the (here, single-element) list of Versions.
// Every mutation goes through LogAndApply, the one place allowed to install
// a new current Version.
type VersionSet struct {
	dir string
	cmp ikey.InternalComparator
	tc  *cache.TableCache

	mu sync.Mutex // serialises manifest appends and Version installs

	nextFileNumber     uint64
	logNumber          uint64
	prevLogNumber      uint64
	lastSequence       uint64
	manifestFileNumber uint64

	manifestFile   *os.File
	manifestWriter *record.Writer
	currentWritten bool // whether CURRENT already names manifestFileNumber

	current *Version
}

// New creates an empty VersionSet with no manifest open yet; callers
// populate it via Recover or by calling LogAndApply directly against a
// freshly initialised database directory.
func New(dir string, cmp ikey.InternalComparator, tc *cache.TableCache) *VersionSet {
	vs := &VersionSet{dir: dir, cmp: cmp, tc: tc}
	vs.current = NewVersion(cmp, tc)
	return vs
}

// Current returns the currently installed Version. The returned *Version
// is never mutated in place, so holding onto it past the lock is always
// safe.
func (vs *VersionSet) Current() *Version {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.current
}

func (vs *VersionSet) NextFileNumber() uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	n := vs.nextFileNumber
	vs.nextFileNumber++
	return n
}

// MarkFileNumberUsed bumps NextFileNumber past n if it isn't already, so a
// file number discovered during recovery is never re-allocated.
func (vs *VersionSet) MarkFileNumberUsed(n uint64) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if n >= vs.nextFileNumber {
		vs.nextFileNumber = n + 1
	}
}

func (vs *VersionSet) LogNumber() uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.logNumber
}

func (vs *VersionSet) PrevLogNumber() uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.prevLogNumber
}

func (vs *VersionSet) LastSequence() uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.lastSequence
}

// SetLastSequence advances the last-assigned sequence number; it never
// moves backward.
func (vs *VersionSet) SetLastSequence(seq uint64) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if seq > vs.lastSequence {
		vs.lastSequence = seq
	}
}

// ManifestFileNumber returns the file number of the currently active
// manifest (0 if none has been created yet).
func (vs *VersionSet) ManifestFileNumber() uint64 {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.manifestFileNumber
}

// LiveFiles returns the set of file numbers referenced by the current
// Version across all levels, used by the obsolete-file sweep.
func (vs *VersionSet) LiveFiles() map[uint64]bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	live := make(map[uint64]bool)
	for level := 0; level < NumLevels; level++ {
		for _, f := range vs.current.Files[level] {
			live[f.FileNum] = true
		}
	}
	return live
}

// LogAndApply installs edit as the next Version:
//  1. ensure a manifest file is open, creating one with a baseline snapshot
//     if not;
//  2. update VersionSet's log_number/prev_log_number/last_sequence from the
//     fields the edit carries, then stamp edit's missing
//     log_number/last_sequence and its next_file_number from VersionSet
//     state;
//  3. append the serialised edit to the manifest log, syncing after;
//  4. atomically point CURRENT at the manifest, the first time this
//     manifest file becomes active;
//  5. build and install the new Version.
func (vs *VersionSet) LogAndApply(edit *Edit) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.manifestWriter == nil {
		if err := vs.createManifestLocked(); err != nil {
			return err
		}
	}

	if edit.HasLogNumber {
		vs.logNumber = edit.LogNumber
	} else {
		edit.HasLogNumber, edit.LogNumber = true, vs.logNumber
	}
	if edit.HasPrevLogNumber {
		vs.prevLogNumber = edit.PrevLogNumber
	}
	edit.HasNextFileNumber, edit.NextFileNumber = true, vs.nextFileNumber
	if edit.HasLastSequence && edit.LastSequence > vs.lastSequence {
		vs.lastSequence = edit.LastSequence
	} else {
		edit.HasLastSequence, edit.LastSequence = true, vs.lastSequence
	}

	if err := vs.manifestWriter.Append(edit.Encode()); err != nil {
		return fmt.Errorf("version: append manifest record: %w", err)
	}
	if err := vs.manifestFile.Sync(); err != nil {
		return fmt.Errorf("version: sync manifest: %w", err)
	}

	if !vs.currentWritten {
		if err := vs.installCurrentLocked(); err != nil {
			return err
		}
		vs.currentWritten = true
	}

	builder := NewBuilder(vs.current)
	builder.Apply(edit)
	next := NewVersion(vs.cmp, vs.tc)
	builder.SaveTo(next)
	next.prev = vs.current
	vs.current.next = next
	vs.current = next

	return nil
}

// createManifestLocked allocates a fresh manifest file number, opens the
// file, and writes a baseline edit snapshotting the current Version's
// contents. Called with vs.mu held.
func (vs *VersionSet) createManifestLocked() error {
	vs.manifestFileNumber = vs.nextFileNumber
	vs.nextFileNumber++

	path := filenames.ManifestFileName(vs.dir, vs.manifestFileNumber)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("version: create manifest: %w", err)
	}

	snapshot := &Edit{HasComparator: true, Comparator: vs.cmp.Name()}
	for level := 0; level < NumLevels; level++ {
		for _, file := range vs.current.Files[level] {
			snapshot.AddFile(level, *file)
		}
	}

	w := record.NewWriter(f)
	if err := w.Append(snapshot.Encode()); err != nil {
		f.Close()
		return fmt.Errorf("version: write manifest baseline: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("version: sync manifest baseline: %w", err)
	}

	vs.manifestFile = f
	vs.manifestWriter = w
	vs.currentWritten = false
	return nil
}

// installCurrentLocked atomically points CURRENT at the active manifest via
// a temp-file-then-rename.
func (vs *VersionSet) installCurrentLocked() error {
	tmp := filenames.CurrentTempFileName(vs.dir, vs.manifestFileNumber)
	manifestBase := filenames.ManifestBaseName(vs.manifestFileNumber)
	if err := os.WriteFile(tmp, []byte(manifestBase+"\n"), 0o644); err != nil {
		return fmt.Errorf("version: write CURRENT staging file: %w", err)
	}
	if err := os.Rename(tmp, filenames.CurrentFileName(vs.dir)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("version: install CURRENT: %w", err)
	}
	return nil
}

// Close releases the manifest file handle.
func (vs *VersionSet) Close() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.manifestFile == nil {
		return nil
	}
	err := vs.manifestFile.Close()
	vs.manifestFile = nil
	vs.manifestWriter = nil
	return err
}
