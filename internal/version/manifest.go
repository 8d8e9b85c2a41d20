package version

import (
	"fmt"
	"io"
	"os"

	"github.com/Priyanshu23/flashkv/internal/cache"
	"github.com/Priyanshu23/flashkv/internal/filenames"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/record"
)

// ErrNoCurrent is returned by Recover when the database directory has no
// CURRENT file; the caller is expected to initialise a brand new database
// in that case.
var ErrNoCurrent = fmt.Errorf("version: no CURRENT file")

// Recover reads CURRENT, opens the manifest it names, and replays every
// edit record through a Builder to reconstruct the current Version and the
// scalar bookkeeping fields. The returned VersionSet has no manifest file
// open for append yet; the next call to LogAndApply allocates a fresh
// manifest file number and writes a baseline snapshot of the recovered
// Version, rather than reopening the old manifest for append.
func Recover(dir string, cmp ikey.InternalComparator, tc *cache.TableCache) (*VersionSet, error) {
	currentBytes, err := os.ReadFile(filenames.CurrentFileName(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCurrent
		}
		return nil, fmt.Errorf("version: read CURRENT: %w", err)
	}
	manifestName, err := filenames.ReadCurrent(currentBytes)
	if err != nil {
		return nil, err
	}
	_, manifestNumber, ok := filenames.Parse(manifestName)
	if !ok {
		return nil, fmt.Errorf("version: CURRENT names unparseable manifest %q", manifestName)
	}

	f, err := os.Open(filenames.ManifestFileName(dir, manifestNumber))
	if err != nil {
		return nil, fmt.Errorf("version: open manifest %s: %w", manifestName, err)
	}
	defer f.Close()

	vs := New(dir, cmp, tc)
	vs.manifestFileNumber = manifestNumber

	builder := NewBuilder(NewVersion(cmp, tc))
	reader := record.NewReader(f)
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("version: read manifest record: %w", err)
		}
		edit, err := Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("version: decode manifest record: %w", err)
		}
		builder.Apply(edit)
		if edit.HasLogNumber {
			vs.logNumber = edit.LogNumber
		}
		if edit.HasPrevLogNumber {
			vs.prevLogNumber = edit.PrevLogNumber
		}
		if edit.HasNextFileNumber {
			vs.nextFileNumber = edit.NextFileNumber
		}
		if edit.HasLastSequence && edit.LastSequence > vs.lastSequence {
			vs.lastSequence = edit.LastSequence
		}
	}

	next := NewVersion(cmp, tc)
	builder.SaveTo(next)
	vs.current = next

	for level := 0; level < NumLevels; level++ {
		for _, file := range vs.current.Files[level] {
			vs.MarkFileNumberUsed(file.FileNum)
		}
	}
	vs.MarkFileNumberUsed(manifestNumber)

	return vs, nil
}

// InitializeEmpty bootstraps a brand new database directory, writing the
// first manifest and pointing CURRENT at it. The returned VersionSet has
// its next file number already past the manifest it just created.
func InitializeEmpty(dir string, cmp ikey.InternalComparator, tc *cache.TableCache) (*VersionSet, error) {
	vs := New(dir, cmp, tc)
	vs.nextFileNumber = 1 // LogAndApply allocates file 1 for this manifest, landing next_file_number at 2
	return vs, vs.LogAndApply(&Edit{})
}
