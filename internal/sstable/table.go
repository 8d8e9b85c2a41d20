package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Priyanshu23/flashkv/internal/codec"
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
)

// bloomKey reduces userKey to a fixed-width 8-byte digest via xxhash before
// it reaches the filter's own multi-probe hashing, so the filter always
// hashes a small fixed-size input regardless of key length.
func bloomKey(userKey []byte) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], xxhash.Sum64(userKey))
	return buf[:]
}

// Magic is the fixed footer magic number.
const Magic = uint64(0xdb4775248b80fb57)

// FooterLen is the fixed on-disk footer size.
const FooterLen = 40

// DefaultBlockSize is the target uncompressed size of a data block before
// the TableBuilder rolls over to a new one.
const DefaultBlockSize = 4 * 1024

// Metaindex keys. Entries must be added in ascending key order, so keep
// these sorted.
const (
	// comparatorKey names the user comparator the table was built with; a
	// reader opening the table under a different comparator fails fast
	// instead of serving mis-ordered seeks.
	comparatorKey = "comparator"
	// bloomFilterKey registers a written bloom-filter block, so a reader
	// only looks for one when it was built.
	bloomFilterKey = "filter.flashkv.bloom"
)

// Footer is the fixed-length record at the end of an SST file: index
// handle, metaindex handle, magic.
type Footer struct {
	MetaindexHandle BlockHandle
	IndexHandle     BlockHandle
	Magic           uint64
}

// EncodeTo renders the footer into its fixed 40-byte form.
func (f Footer) EncodeTo() []byte {
	buf := make([]byte, 0, FooterLen)
	buf = f.IndexHandle.EncodeTo(buf)
	buf = f.MetaindexHandle.EncodeTo(buf)
	buf = codec.AppendUint64(buf, f.Magic)
	for len(buf) < FooterLen {
		buf = append(buf, 0)
	}
	return buf
}

// ErrBadMagic is reported for a footer whose magic number does not match.
var ErrBadMagic = fmt.Errorf("sstable: bad footer magic")

// DecodeFooter parses a Footer from its fixed-length encoding.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) < FooterLen {
		return Footer{}, fmt.Errorf("sstable: truncated footer")
	}
	indexHandle, rest, err := DecodeBlockHandle(buf)
	if err != nil {
		return Footer{}, err
	}
	metaHandle, rest, err := DecodeBlockHandle(rest)
	if err != nil {
		return Footer{}, err
	}
	magic := binary.LittleEndian.Uint64(rest[:8])
	if magic != Magic {
		return Footer{}, ErrBadMagic
	}
	return Footer{MetaindexHandle: metaHandle, IndexHandle: indexHandle, Magic: magic}, nil
}

// pendingIndexEntry holds a just-flushed data block's handle until the next
// Add arrives and a separator between the previous and new key can be
// computed; delaying the entry is what allows the separator to be short.
type pendingIndexEntry struct {
	lastKey ikey.Key // full internal key of the flushed block's last entry
	handle  BlockHandle
	pending bool
}

// indexSeparator returns an internal key that is >= every key in the block
// ending at last and < every key in the block beginning at next. When the
// user keys admit a strictly shorter separator it is given a maximal
// trailer so it still sorts after last's real entries; otherwise last
// itself is the separator.
func indexSeparator(cmp ikey.Comparator, last, next ikey.Key) ikey.Key {
	sepUser := ikey.ShortSeparator(cmp, last.UserKey(), next.UserKey())
	if cmp.Compare(sepUser, last.UserKey()) > 0 {
		return ikey.Make(sepUser, ikey.MaxSequence, ikey.MaxKind)
	}
	return last
}

// indexSuccessor is indexSeparator's one-sided form for the final block.
func indexSuccessor(cmp ikey.Comparator, last ikey.Key) ikey.Key {
	succUser := ikey.ShortSuccessor(last.UserKey())
	if cmp.Compare(succUser, last.UserKey()) > 0 {
		return ikey.Make(succUser, ikey.MaxSequence, ikey.MaxKind)
	}
	return last
}

// TableBuilder writes one immutable SST file: data blocks, an index block,
// an (optional) bloom-filter block registered in the metaindex block, and
// the fixed footer.
type TableBuilder struct {
	w           writerAtCloser
	cmp         ikey.Comparator
	blockSize   int
	restartSize int
	compression CompressionType

	offset     int64
	dataBlock  *BlockBuilder
	indexBlock *BlockBuilder
	pending    pendingIndexEntry

	filter *bloom.BloomFilter // nil disables the filter block

	smallest   ikey.Key
	largest    ikey.Key
	numEntries int
}

// writerAtCloser is what a TableBuilder needs from its destination file.
type writerAtCloser interface {
	writerAt
	Close() error
}

// Options configures a TableBuilder.
type Options struct {
	BlockSize       int
	RestartInterval int
	Compression     CompressionType
	// FilterExpectedEntries, when > 0, builds a bloom filter block sized
	// for that many keys.
	FilterExpectedEntries uint
	Comparator            ikey.Comparator
}

// NewTableBuilder creates a builder writing to w.
func NewTableBuilder(w writerAtCloser, opts Options) *TableBuilder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.RestartInterval <= 0 {
		opts.RestartInterval = RestartInterval
	}
	if opts.Comparator == nil {
		opts.Comparator = ikey.BytewiseComparator{}
	}

	tb := &TableBuilder{
		w:           w,
		cmp:         opts.Comparator,
		blockSize:   opts.BlockSize,
		restartSize: opts.RestartInterval,
		compression: opts.Compression,
		dataBlock:   NewBlockBuilder(opts.RestartInterval),
		indexBlock:  NewBlockBuilder(1), // index entries are few; no prefix sharing needed
	}
	if opts.FilterExpectedEntries > 0 {
		tb.filter = bloom.NewWithEstimates(opts.FilterExpectedEntries, 0.01)
	}
	return tb
}

// Add appends one (internalKey, value) entry. Entries must arrive in
// ascending internal-key order.
func (tb *TableBuilder) Add(internalKey ikey.Key, value []byte) error {
	if tb.pending.pending {
		sep := indexSeparator(tb.cmp, tb.pending.lastKey, internalKey)
		if err := tb.writeIndexEntry(sep, tb.pending.handle); err != nil {
			return err
		}
		tb.pending.pending = false
	}

	if tb.filter != nil {
		tb.filter.Add(bloomKey(internalKey.UserKey()))
	}

	if tb.smallest == nil {
		tb.smallest = append(ikey.Key(nil), internalKey...)
	}
	tb.largest = append(tb.largest[:0], internalKey...)
	tb.numEntries++

	tb.dataBlock.Add(internalKey, value)

	if tb.dataBlock.EstimatedSize() >= tb.blockSize {
		return tb.flushDataBlock()
	}
	return nil
}

func (tb *TableBuilder) flushDataBlock() error {
	if tb.dataBlock.Empty() {
		return nil
	}
	content := tb.dataBlock.Finish()
	handle, err := WriteBlock(tb.w, tb.offset, content, tb.compression)
	if err != nil {
		return err
	}
	tb.offset += int64(handle.Size) + trailerLen

	tb.pending = pendingIndexEntry{
		lastKey: append(ikey.Key(nil), tb.dataBlock.LastKey()...),
		handle:  handle,
		pending: true,
	}
	tb.dataBlock.Reset()
	return nil
}

func (tb *TableBuilder) writeIndexEntry(separator []byte, handle BlockHandle) error {
	var valBuf []byte
	valBuf = handle.EncodeTo(valBuf)
	tb.indexBlock.Add(separator, valBuf)
	return nil
}

// Finish flushes any pending data block, writes the index block, the
// (optional) filter block and the metaindex block referencing it, and
// writes the footer.
func (tb *TableBuilder) Finish() (FileMetadata, error) {
	if err := tb.flushDataBlock(); err != nil {
		return FileMetadata{}, err
	}
	if tb.pending.pending {
		sep := indexSuccessor(tb.cmp, tb.pending.lastKey)
		if err := tb.writeIndexEntry(sep, tb.pending.handle); err != nil {
			return FileMetadata{}, err
		}
		tb.pending.pending = false
	}

	metaBlock := NewBlockBuilder(1)
	metaBlock.Add([]byte(comparatorKey), []byte(tb.cmp.Name()))
	if tb.filter != nil {
		var filterBuf bytes.Buffer
		if _, err := tb.filter.WriteTo(&filterBuf); err != nil {
			return FileMetadata{}, fmt.Errorf("sstable: marshal bloom filter: %w", err)
		}
		filterHandle, err := WriteBlock(tb.w, tb.offset, filterBuf.Bytes(), CompressionNone)
		if err != nil {
			return FileMetadata{}, err
		}
		tb.offset += int64(filterHandle.Size) + trailerLen

		var valBuf []byte
		valBuf = filterHandle.EncodeTo(valBuf)
		metaBlock.Add([]byte(bloomFilterKey), valBuf)
	}
	metaContent := metaBlock.Finish()
	metaHandle, err := WriteBlock(tb.w, tb.offset, metaContent, CompressionNone)
	if err != nil {
		return FileMetadata{}, err
	}
	tb.offset += int64(metaHandle.Size) + trailerLen

	indexContent := tb.indexBlock.Finish()
	indexHandle, err := WriteBlock(tb.w, tb.offset, indexContent, CompressionNone)
	if err != nil {
		return FileMetadata{}, err
	}
	tb.offset += int64(indexHandle.Size) + trailerLen

	footer := Footer{MetaindexHandle: metaHandle, IndexHandle: indexHandle, Magic: Magic}
	if _, err := tb.w.WriteAt(footer.EncodeTo(), tb.offset); err != nil {
		return FileMetadata{}, err
	}
	tb.offset += FooterLen

	if err := tb.w.Close(); err != nil {
		return FileMetadata{}, err
	}

	return FileMetadata{
		FileSize: tb.offset,
		Smallest: tb.smallest,
		Largest:  tb.largest,
	}, nil
}

// Empty reports whether Add has never been called, letting callers skip
// writing a file for an empty memtable flush.
func (tb *TableBuilder) Empty() bool { return tb.numEntries == 0 }

// FileMetadata is what a freshly written table can report about itself; the
// caller attaches the file number and level.
type FileMetadata struct {
	FileSize int64
	Smallest ikey.Key
	Largest  ikey.Key
}
