// Package sstable implements the on-disk sorted-string table format: data
// blocks with restart-interval prefix compression, an index block, a
// metaindex block, and a fixed-length footer terminated by a magic number.
// The BlockBuilder/TableBuilder split lets blocks be sized independently of
// the table.
package sstable

import (
	"fmt"

	"github.com/Priyanshu23/flashkv/internal/codec"
	"github.com/golang/snappy"
)

// RestartInterval is the default number of entries between restart points.
const RestartInterval = 16

// CompressionType tags how a block's content bytes are compressed, stored
// as the first byte of a block's trailer.
type CompressionType byte

const (
	// CompressionNone stores block content uncompressed.
	CompressionNone CompressionType = 0
	// CompressionSnappy compresses block content with Snappy.
	CompressionSnappy CompressionType = 1
)

// trailerLen is 1 compression-type byte + 4-byte CRC-32C.
const trailerLen = 5

// BlockHandle is a (offset, size) pointer to a block within an SST file;
// size excludes the trailer.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// EncodeTo appends the handle as two varint-free fixed u64s, keeping the
// format simple and aligned with the rest of the codec package.
func (h BlockHandle) EncodeTo(dst []byte) []byte {
	dst = codec.AppendUint64(dst, h.Offset)
	dst = codec.AppendUint64(dst, h.Size)
	return dst
}

// DecodeBlockHandle reads a handle from the front of b.
func DecodeBlockHandle(b []byte) (BlockHandle, []byte, error) {
	if len(b) < 16 {
		return BlockHandle{}, nil, fmt.Errorf("sstable: truncated block handle")
	}
	return BlockHandle{Offset: codec.Uint64(b[0:8]), Size: codec.Uint64(b[8:16])}, b[16:], nil
}

const handleEncodedLen = 16

// BlockBuilder accumulates entries in ascending key order into one data (or
// index) block, maintaining the restart-point list as it goes.
type BlockBuilder struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int
	lastKey         []byte
	numEntries      int
}

// NewBlockBuilder creates a block builder with the given restart interval.
func NewBlockBuilder(restartInterval int) *BlockBuilder {
	if restartInterval <= 0 {
		restartInterval = RestartInterval
	}
	return &BlockBuilder{
		restartInterval: restartInterval,
		restarts:        []uint32{0},
	}
}

// Reset clears the builder for reuse.
func (b *BlockBuilder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.numEntries = 0
}

// Empty reports whether any entry has been added since the last Reset.
func (b *BlockBuilder) Empty() bool { return b.numEntries == 0 }

// NumEntries returns how many entries have been added since the last Reset.
func (b *BlockBuilder) NumEntries() int { return b.numEntries }

// EstimatedSize is the current uncommitted buffer size plus the restart
// list's eventual footprint, used by the TableBuilder to decide when a data
// block is full.
func (b *BlockBuilder) EstimatedSize() int {
	return len(b.buf) + len(b.restarts)*4 + 4
}

// LastKey returns the most recently added key.
func (b *BlockBuilder) LastKey() []byte { return b.lastKey }

// Add appends one (key, value) entry, sharing a prefix with the previous key
// unless this entry falls on a restart point.
func (b *BlockBuilder) Add(key, value []byte) {
	shared := 0
	if b.counter < b.restartInterval {
		shared = commonPrefixLen(b.lastKey, key)
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}
	unshared := key[shared:]

	b.buf = codec.AppendUint32(b.buf, uint32(shared))
	b.buf = codec.AppendUint32(b.buf, uint32(len(unshared)))
	b.buf = codec.AppendUint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, unshared...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
	b.numEntries++
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Finish appends the restart-point list and its count and returns the
// block's uncompressed content (caller writes the trailer).
func (b *BlockBuilder) Finish() []byte {
	for _, r := range b.restarts {
		b.buf = codec.AppendUint32(b.buf, r)
	}
	b.buf = codec.AppendUint32(b.buf, uint32(len(b.restarts)))
	return b.buf
}

// WriteBlock compresses content per compression, appends the trailer (type
// byte + CRC-32C over the stored, possibly compressed, payload||type) and
// writes both to w, returning the block's handle. The handle's size excludes
// the trailer.
func WriteBlock(w writerAt, offset int64, content []byte, compression CompressionType) (BlockHandle, error) {
	payload := content
	if compression == CompressionSnappy {
		payload = snappy.Encode(nil, content)
	}

	crc := codec.NewCRC()
	crc.Write(payload)
	crc.Write([]byte{byte(compression)})

	block := make([]byte, 0, len(payload)+trailerLen)
	block = append(block, payload...)
	block = append(block, byte(compression))
	block = codec.AppendUint32(block, crc.Sum32())

	if _, err := w.WriteAt(block, offset); err != nil {
		return BlockHandle{}, err
	}

	return BlockHandle{Offset: uint64(offset), Size: uint64(len(payload))}, nil
}

// writerAt is the minimal capability WriteBlock needs; *os.File and a
// bytes-backed test double both satisfy it.
type writerAt interface {
	WriteAt(p []byte, off int64) (int, error)
}

// ErrChecksumMismatch is reported when a block's CRC-32C does not match
// its trailer.
var ErrChecksumMismatch = fmt.Errorf("sstable: block checksum mismatch")

// ReadBlock reads and validates the block at handle, returning its
// decompressed content.
func ReadBlock(f RandomAccessFile, handle BlockHandle) ([]byte, error) {
	buf := make([]byte, handle.Size+trailerLen)
	if _, err := f.ReadAt(buf, int64(handle.Offset)); err != nil {
		return nil, err
	}
	payload := buf[:handle.Size]
	compression := CompressionType(buf[handle.Size])
	storedCRC := codec.Uint32(buf[handle.Size+1:])

	crc := codec.NewCRC()
	crc.Write(payload)
	crc.Write([]byte{byte(compression)})
	if crc.Sum32() != storedCRC {
		return nil, ErrChecksumMismatch
	}

	switch compression {
	case CompressionNone:
		return payload, nil
	case CompressionSnappy:
		return snappy.Decode(nil, payload)
	default:
		return nil, fmt.Errorf("sstable: unknown compression type %d", compression)
	}
}

// Block is a parsed, immutable data or index block, supporting seek by
// restart-point binary search plus a linear scan.
type Block struct {
	data     []byte // entries only, restarts stripped off
	restarts []uint32
}

// ParseBlock splits content (as returned by ReadBlock) into its entry region
// and restart-point list.
func ParseBlock(content []byte) (*Block, error) {
	if len(content) < 4 {
		return nil, fmt.Errorf("sstable: block too small")
	}
	numRestarts := codec.Uint32(content[len(content)-4:])
	restartsStart := len(content) - 4 - int(numRestarts)*4
	if restartsStart < 0 {
		return nil, fmt.Errorf("sstable: corrupt restart-point count")
	}
	restarts := make([]uint32, numRestarts)
	for i := range restarts {
		restarts[i] = codec.Uint32(content[restartsStart+i*4:])
	}
	return &Block{data: content[:restartsStart], restarts: restarts}, nil
}

// entryAt decodes the entry starting at byte offset off within b.data,
// given the previous entry's full key (for shared-prefix reconstruction).
// Returns the reconstructed key, value, and the offset just past this
// entry; ok is false past the end of the block.
func (b *Block) entryAt(off int, prevKey []byte) (key, value []byte, next int, ok bool) {
	if off >= len(b.data) {
		return nil, nil, off, false
	}
	rest := b.data[off:]
	if len(rest) < 12 {
		return nil, nil, off, false
	}
	shared := codec.Uint32(rest[0:4])
	unsharedLen := codec.Uint32(rest[4:8])
	valueLen := codec.Uint32(rest[8:12])
	rest = rest[12:]

	unshared := rest[:unsharedLen]
	value = rest[unsharedLen : unsharedLen+valueLen]

	key = make([]byte, 0, int(shared)+int(unsharedLen))
	key = append(key, prevKey[:shared]...)
	key = append(key, unshared...)

	next = off + 12 + int(unsharedLen) + int(valueLen)
	return key, value, next, true
}

// restartKey decodes just the key at a restart point, which always has
// shared == 0.
func (b *Block) restartKey(restartOffset uint32) []byte {
	key, _, _, _ := b.entryAt(int(restartOffset), nil)
	return key
}

// Seek finds the smallest entry with key >= target using the restart-point
// binary search followed by a linear scan.
func (b *Block) Seek(cmp Comparator, target []byte) (value []byte, ok bool) {
	it := b.NewIterator(cmp)
	it.Seek(target)
	if !it.Valid() {
		return nil, false
	}
	return it.Value(), true
}

// Comparator is the subset of ikey.Comparator a block needs: ordering over
// whatever byte slices its entries are keyed by (internal keys for data
// blocks and the index block's separators, plain strings for the metaindex
// block).
type Comparator interface {
	Compare(a, b []byte) int
}

// Iterator walks a Block in ascending key order.
type Iterator struct {
	block *Block
	cmp   Comparator
	off   int
	key   []byte
	value []byte
	valid bool
}

// NewIterator returns an Iterator over b ordered by cmp.
func (b *Block) NewIterator(cmp Comparator) *Iterator {
	return &Iterator{block: b, cmp: cmp}
}

func (it *Iterator) Valid() bool   { return it.valid }
func (it *Iterator) Key() []byte   { return it.key }
func (it *Iterator) Value() []byte { return it.value }

// SeekToFirst positions the iterator at the block's first entry.
func (it *Iterator) SeekToFirst() {
	it.seekToRestart(0)
	it.scanForward(nil)
}

// seekToRestart repositions to restart point i and decodes its entry.
func (it *Iterator) seekToRestart(i int) {
	if i >= len(it.block.restarts) {
		it.valid = false
		return
	}
	it.off = int(it.block.restarts[i])
	key, value, next, ok := it.block.entryAt(it.off, nil)
	if !ok {
		it.valid = false
		return
	}
	it.key, it.value, it.off, it.valid = key, value, next, true
}

// Seek positions the iterator at the smallest entry >= target.
func (it *Iterator) Seek(target []byte) {
	restarts := it.block.restarts
	lo, hi := 0, len(restarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		k := it.block.restartKey(restarts[mid])
		if it.cmp.Compare(k, target) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	it.seekToRestart(lo)
	it.scanForward(target)
}

// scanForward advances from the current position until key >= target (or,
// when target is nil, does nothing beyond the initial decode).
func (it *Iterator) scanForward(target []byte) {
	for it.valid {
		if target == nil || it.cmp.Compare(it.key, target) >= 0 {
			return
		}
		it.Next()
	}
}

// Next advances to the following entry.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	key, value, next, ok := it.block.entryAt(it.off, it.key)
	if !ok {
		it.valid = false
		return
	}
	it.key, it.value, it.off = key, value, next
}
