// Package flashkv implements an embedded, single-process ordered key/value
// store on the log-structured merge-tree pattern. DB is the orchestrator:
// it drives the write path (WAL append + memtable insert + rotation + SST
// flush + manifest install), the read path (mutable memtable -> immutable
// memtable -> current Version), and crash recovery, all of it built from
// the internal/* leaf packages that hold the actual wire formats.
package flashkv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Priyanshu23/flashkv/internal/cache"
	"github.com/Priyanshu23/flashkv/internal/filenames"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/memtable"
	"github.com/Priyanshu23/flashkv/internal/record"
	"github.com/Priyanshu23/flashkv/internal/sstable"
	"github.com/Priyanshu23/flashkv/internal/version"
	"github.com/sirupsen/logrus"
)

// DB is an open database directory. The zero value is not usable; construct
// one with Open.
type DB struct {
	dir    string
	opts   Options
	cmp    ikey.InternalComparator
	logger *logrus.Logger

	cache *cache.TableCache
	vs    *version.VersionSet

	// mu serialises every write-path operation: there is only ever one
	// writer at a time. Reads take mu only long enough to snapshot the
	// memtables and current Version.
	mu        sync.Mutex
	closed    bool
	logFile   *os.File
	logWriter *record.Writer
	logNumber uint64
	mem       *memtable.Memtable
	imm       *memtable.Memtable // non-nil while a flush is pending/in-flight
}

// Open opens (creating if absent) the database directory at dir.
func Open(dir string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flashkv: create directory %s: %w", dir, err)
	}

	cmp := ikey.NewInternalComparator(o.Comparator)
	tc, err := cache.New(dir, cmp, o.TableCacheSize)
	if err != nil {
		return nil, err
	}

	vs, err := version.Recover(dir, cmp, tc)
	if err != nil {
		if !errors.Is(err, version.ErrNoCurrent) {
			return nil, err
		}
		o.Logger.WithField("dir", dir).Info("flashkv: no CURRENT file, initialising new database")
		vs, err = version.InitializeEmpty(dir, cmp, tc)
		if err != nil {
			return nil, err
		}
	}

	db := &DB{dir: dir, opts: o, cmp: cmp, logger: o.Logger, cache: tc, vs: vs}

	if err := db.recoverLogs(); err != nil {
		return nil, err
	}

	if err := db.openNewLogLocked(); err != nil {
		return nil, err
	}

	edit := &version.Edit{HasLogNumber: true, LogNumber: db.logNumber}
	if err := db.vs.LogAndApply(edit); err != nil {
		return nil, fmt.Errorf("flashkv: install recovered version: %w", err)
	}

	db.sweepObsoleteLocked()

	return db, nil
}

// openNewLogLocked allocates a fresh WAL file number and opens it as the
// active log, recording it on the VersionSet via the edit the caller
// installs next.
func (db *DB) openNewLogLocked() error {
	num := db.vs.NextFileNumber()
	f, err := os.OpenFile(filenames.LogFileName(db.dir, num), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("flashkv: open WAL %d: %w", num, err)
	}
	db.logFile = f
	db.logWriter = record.NewWriter(f)
	db.logNumber = num
	db.mem = memtable.New(db.cmp)
	return nil
}

// recoverLogs replays every WAL file at or past the manifest's recorded log
// number, flushing each one's leftover entries to a fresh level-0 SST, and
// installs the accumulated edit in one LogAndApply call.
func (db *DB) recoverLogs() error {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return fmt.Errorf("flashkv: scan directory: %w", err)
	}

	var logNums []uint64
	for _, e := range entries {
		t, n, ok := filenames.Parse(e.Name())
		if ok && t == filenames.TypeLog && n >= db.vs.LogNumber() {
			logNums = append(logNums, n)
		}
	}
	sort.Slice(logNums, func(i, j int) bool { return logNums[i] < logNums[j] })

	if len(logNums) == 0 {
		return nil
	}

	edit := &version.Edit{}
	var maxSeq uint64
	for _, num := range logNums {
		db.vs.MarkFileNumberUsed(num)
		seq, err := db.replayLogIntoEdit(num, edit)
		if err != nil {
			return err
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if maxSeq > db.vs.LastSequence() {
		db.vs.SetLastSequence(maxSeq)
	}

	db.logger.WithFields(logrus.Fields{"logs": len(logNums), "new_files": len(edit.NewFiles)}).Info("flashkv: recovered WAL logs")

	return db.vs.LogAndApply(edit)
}

// replayLogIntoEdit replays one WAL file into a fresh memtable and, if it
// ends up non-empty, flushes that memtable to a new level-0 SST and appends
// a NewFile entry to edit. A corrupt record stops replay of this log at
// the position reached rather than failing recovery outright.
func (db *DB) replayLogIntoEdit(num uint64, edit *version.Edit) (maxSeq uint64, err error) {
	f, err := os.Open(filenames.LogFileName(db.dir, num))
	if err != nil {
		return 0, fmt.Errorf("flashkv: open WAL %d for replay: %w", num, err)
	}
	defer f.Close()

	mem := memtable.New(db.cmp)
	r := record.NewReader(f)
	for {
		rec, rerr := r.Next()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			db.logger.WithError(rerr).Warnf("flashkv: corrupt WAL %d, stopping replay at this point", num)
			break
		}
		b, derr := decodeBatch(rec)
		if derr != nil {
			db.logger.WithError(derr).Warnf("flashkv: corrupt batch in WAL %d, stopping replay at this point", num)
			break
		}
		for i, op := range b.ops {
			seq := b.seq + uint64(i)
			mem.Insert(op.key, seq, op.kind, op.value)
			if seq > maxSeq {
				maxSeq = seq
			}
		}
	}

	if mem.IsEmpty() {
		return maxSeq, nil
	}

	fileNum := db.vs.NextFileNumber()
	meta, err := db.writeLevel0Table(mem, fileNum)
	if err != nil {
		return maxSeq, fmt.Errorf("flashkv: flush recovered WAL %d: %w", num, err)
	}
	if meta != nil {
		edit.AddFile(0, *meta)
	}
	return maxSeq, nil
}

// writeLevel0Table drains mem's iterator into a new SST at fileNum,
// returning its FileMetadata, or nil if mem turned out empty (an empty
// flush writes no file and appends no edit).
func (db *DB) writeLevel0Table(mem *memtable.Memtable, fileNum uint64) (*version.FileMetadata, error) {
	path := filenames.TableFileName(db.dir, fileNum)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	tb := sstable.NewTableBuilder(f, sstable.Options{
		BlockSize:             db.opts.BlockSize,
		RestartInterval:       db.opts.RestartInterval,
		Compression:           db.opts.Compression,
		FilterExpectedEntries: db.opts.FilterExpectedEntries,
		Comparator:            db.cmp.UserCmp,
	})

	it := mem.NewIterator()
	it.SeekToFirst()
	for it.Valid() {
		if err := tb.Add(it.Key(), it.Value()); err != nil {
			return nil, err
		}
		it.Next()
	}

	if tb.Empty() {
		_ = f.Close()
		os.Remove(path)
		return nil, nil
	}

	meta, err := tb.Finish()
	if err != nil {
		return nil, err
	}

	return &version.FileMetadata{
		FileNum:  fileNum,
		FileSize: meta.FileSize,
		Smallest: meta.Smallest,
		Largest:  meta.Largest,
	}, nil
}

// Close releases every resource the DB holds. In-flight writes must
// complete before Close is called; Close does not attempt to cancel them.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	if db.logFile != nil {
		if err := db.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.vs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	db.cache.Close()
	return firstErr
}

// Put writes a value for key under a fresh sequence number.
func (db *DB) Put(key, value []byte) error {
	return db.Apply(NewBatch().Put(key, value))
}

// Delete writes a tombstone for key.
func (db *DB) Delete(key []byte) error {
	return db.Apply(NewBatch().Delete(key))
}

// Apply durably applies b as one atomic unit under one sequence-number
// range. A zero-op batch is a permitted no-op and does not advance the
// last sequence.
func (db *DB) Apply(b *Batch) error {
	if b.Count() == 0 {
		return nil
	}
	if err := b.validate(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	if err := db.makeRoomForWriteLocked(); err != nil {
		return err
	}

	seq := db.vs.LastSequence() + 1
	b.seq = seq

	if err := db.logWriter.Append(b.encode()); err != nil {
		return fmt.Errorf("flashkv: append WAL record: %w", err)
	}
	if err := db.logFile.Sync(); err != nil {
		return fmt.Errorf("flashkv: sync WAL: %w", err)
	}

	for i, op := range b.ops {
		db.mem.Insert(op.key, seq+uint64(i), op.kind, op.value)
	}
	db.vs.SetLastSequence(seq + uint64(len(b.ops)) - 1)

	return nil
}

// makeRoomForWriteLocked rotates the mutable memtable to immutable and
// opens a new WAL once the mutable memtable crosses WriteBufferSize,
// flushing the rotated-out memtable before returning. The compaction runs
// synchronously rather than on a background goroutine, so db.imm is only
// ever non-nil for the duration of this call; any writer entering here
// observes the immutable slot drained before it returns.
func (db *DB) makeRoomForWriteLocked() error {
	for db.mem.ApproximateMemoryUse() >= db.opts.WriteBufferSize {
		rotated := db.mem
		oldLogFile, oldLogNumber := db.logFile, db.logNumber

		if err := db.openNewLogLocked(); err != nil {
			return err
		}
		db.imm = rotated

		db.logger.WithFields(logrus.Fields{"old_log": oldLogNumber, "new_log": db.logNumber}).
			Info("flashkv: rotating memtable")

		if err := db.compactMemTableLocked(); err != nil {
			return err
		}

		if err := oldLogFile.Close(); err != nil {
			return fmt.Errorf("flashkv: close rotated WAL %d: %w", oldLogNumber, err)
		}

		db.sweepObsoleteLocked()
	}
	return nil
}

// compactMemTableLocked flushes the immutable memtable to a new level-0 SST
// and installs a VersionEdit recording it. Called with db.mu held; runs
// synchronously on the writer rather than on a background goroutine.
func (db *DB) compactMemTableLocked() error {
	imm := db.imm
	if imm == nil {
		return nil
	}

	fileNum := db.vs.NextFileNumber()
	meta, err := db.writeLevel0Table(imm, fileNum)
	if err != nil {
		return fmt.Errorf("flashkv: compact memtable: %w", err)
	}
	if meta == nil {
		db.imm = nil
		return nil
	}

	edit := &version.Edit{HasLogNumber: true, LogNumber: db.logNumber}
	edit.AddFile(0, *meta)
	if err := db.vs.LogAndApply(edit); err != nil {
		return fmt.Errorf("flashkv: install compacted memtable: %w", err)
	}

	db.logger.WithFields(logrus.Fields{"file": fileNum, "size": meta.FileSize}).
		Info("flashkv: flushed memtable to level 0")

	db.imm = nil
	return nil
}

// sweepObsoleteLocked deletes every file the current Version, manifest and
// WAL no longer reference. Called with db.mu held.
func (db *DB) sweepObsoleteLocked() {
	live := db.vs.LiveFiles()
	curLogNumber := db.vs.LogNumber()
	curManifestNumber := db.vs.ManifestFileNumber()

	entries, err := os.ReadDir(db.dir)
	if err != nil {
		db.logger.WithError(err).Warn("flashkv: obsolete-file sweep: scan directory")
		return
	}

	for _, e := range entries {
		t, n, ok := filenames.Parse(e.Name())
		if !ok {
			continue
		}

		var remove bool
		switch t {
		case filenames.TypeLog:
			remove = n < curLogNumber
		case filenames.TypeManifest:
			remove = n < curManifestNumber
		case filenames.TypeTable:
			remove = !live[n]
		case filenames.TypeCurrentTemp:
			// Staging file left behind by a crash mid-rename.
			remove = n != curManifestNumber
		}
		if !remove {
			continue
		}

		if err := os.Remove(filepath.Join(db.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			db.logger.WithError(err).Warnf("flashkv: obsolete-file sweep: remove %s", e.Name())
			continue
		}
		if t == filenames.TypeTable {
			db.cache.Evict(n)
		}
	}
}

// Get performs a point lookup at the current last sequence number. found
// is false both when the key has never been written and when its newest
// entry is a tombstone; absence is never an error.
func (db *DB) Get(key []byte) (value []byte, found bool, err error) {
	return db.getAt(key, 0, false)
}

// GetSnapshot performs a point lookup as of snap's pinned sequence number.
func (db *DB) GetSnapshot(key []byte, snap *Snapshot) (value []byte, found bool, err error) {
	return db.getAt(key, snap.seq, true)
}

// NewSnapshot pins the current last sequence number for later use with
// GetSnapshot.
func (db *DB) NewSnapshot() *Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &Snapshot{seq: db.vs.LastSequence()}
}

func (db *DB) getAt(key []byte, seq uint64, pinned bool) (value []byte, found bool, err error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, false, ErrClosed
	}
	if !pinned {
		seq = db.vs.LastSequence()
	}
	mem, imm := db.mem, db.imm
	current := db.vs.Current()
	db.mu.Unlock()

	lookup := ikey.LookupKey(key, seq)

	if val, res := mem.Get(lookup); res != memtable.NotFound {
		return translateMemtableResult(val, res)
	}
	if imm != nil {
		if val, res := imm.Get(lookup); res != memtable.NotFound {
			return translateMemtableResult(val, res)
		}
	}

	val, ok, err := current.Get(lookup)
	if err != nil {
		return nil, false, fmt.Errorf("flashkv: get: %w", err)
	}
	return val, ok, nil
}

func translateMemtableResult(value []byte, res memtable.LookupResult) ([]byte, bool, error) {
	if res == memtable.FoundDeleted {
		return nil, false, nil
	}
	return value, true, nil
}
