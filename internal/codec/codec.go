// Package codec provides the little-endian binary primitives shared by the
// record log, the batch format, the manifest and the SST block format:
// fixed-width integer read/write, length-prefixed byte slices, varint32 and
// the CRC-32C checksum used everywhere on-disk data is framed.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
)

// castagnoliTable is the Castagnoli polynomial table used for every checksum
// in this store (CRC-32C), not Go's default IEEE table.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// NewCRC returns a hash.Hash32 computing CRC-32C over whatever is written to
// it.
func NewCRC() hash.Hash32 {
	return crc32.New(castagnoliTable)
}

// ChecksumCRC32C returns the CRC-32C checksum of b.
func ChecksumCRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// PutUint32 writes v little-endian into dst, which must have length >= 4.
func PutUint32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

// Uint32 reads a little-endian uint32 from the front of b.
func Uint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// PutUint64 writes v little-endian into dst, which must have length >= 8.
func PutUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

// Uint64 reads a little-endian uint64 from the front of b.
func Uint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// AppendUint32 appends v little-endian to dst and returns the extended
// slice.
func AppendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendUint64 appends v little-endian to dst and returns the extended
// slice.
func AppendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendLengthPrefixed appends a u32 length prefix followed by b.
func AppendLengthPrefixed(dst []byte, b []byte) []byte {
	dst = AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// ConsumeLengthPrefixed reads a u32-length-prefixed slice from the front of
// b, returning the slice (sharing b's backing array) and the remainder.
func ConsumeLengthPrefixed(b []byte) (value []byte, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("codec: truncated length prefix")
	}
	n := Uint32(b)
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return nil, nil, fmt.Errorf("codec: truncated length-prefixed value: want %d have %d", n, len(b))
	}
	return b[:n], b[n:], nil
}

// AppendVarint32 appends x as a base-128 varint, LSB group first (the WAL
// batch format's key/value length encoding).
func AppendVarint32(dst []byte, x uint32) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// ConsumeVarint32 decodes a varint32 from the front of b.
func ConsumeVarint32(b []byte) (x uint32, rest []byte, err error) {
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if shift >= 32 {
			return 0, nil, fmt.Errorf("codec: varint32 overflow")
		}
		x |= uint32(c&0x7f) << shift
		if c < 0x80 {
			return x, b[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, fmt.Errorf("codec: truncated varint32")
}
