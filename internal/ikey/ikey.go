// Package ikey implements the internal-key encoding shared by the memtable,
// the SST block format and the version/manifest layer: a user key
// concatenated with an 8-byte trailer packing (sequence << 8 | kind), and
// the ordering that makes "most-recent wins" reads a single ascending scan.
package ikey

import (
	"bytes"
	"fmt"
)

// Kind tags an internal key as a live value or a tombstone.
type Kind uint8

const (
	// KindValue marks a live value.
	KindValue Kind = 0
	// KindDeletion marks a tombstone.
	KindDeletion Kind = 1

	// MaxKind sorts at or before every real kind for a given (user_key,
	// sequence) (it equals KindDeletion), used to build a lookup key that
	// matches any kind at or below a sequence.
	MaxKind Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindDeletion:
		return "deletion"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxSequence is the largest representable sequence number (56 bits).
const MaxSequence = (uint64(1) << 56) - 1

// trailerLen is the width, in bytes, of the (sequence, kind) trailer
// appended to every user key.
const trailerLen = 8

// packTrailer combines sequence and kind into the 8-byte little-endian
// trailer value: upper 56 bits sequence, low 8 bits kind.
func packTrailer(seq uint64, kind Kind) uint64 {
	return seq<<8 | uint64(kind)
}

func unpackTrailer(v uint64) (seq uint64, kind Kind) {
	return v >> 8, Kind(v & 0xff)
}

// Key is an encoded internal key: user_key_bytes || trailer (8 bytes,
// little-endian sequence<<8|kind).
type Key []byte

// Append encodes (userKey, seq, kind) and appends it to dst.
func Append(dst []byte, userKey []byte, seq uint64, kind Kind) Key {
	dst = append(dst, userKey...)
	trailer := packTrailer(seq, kind)
	var buf [trailerLen]byte
	for i := 0; i < trailerLen; i++ {
		buf[i] = byte(trailer >> (8 * i))
	}
	return append(dst, buf[:]...)
}

// Make builds a new internal key from scratch.
func Make(userKey []byte, seq uint64, kind Kind) Key {
	return Append(make([]byte, 0, len(userKey)+trailerLen), userKey, seq, kind)
}

// LookupKey builds the internal key used to seek for the newest visible
// version of userKey at or below seq: (userKey, seq, MaxKind), which sorts
// before any internal key with the same user key and a lower-or-equal
// sequence thanks to the descending-sequence ordering.
func LookupKey(userKey []byte, seq uint64) Key {
	return Make(userKey, seq, MaxKind)
}

// Valid reports whether k is at least long enough to hold a trailer.
func (k Key) Valid() bool {
	return len(k) >= trailerLen
}

// UserKey returns the user-key portion of k.
func (k Key) UserKey() []byte {
	if !k.Valid() {
		return nil
	}
	return k[:len(k)-trailerLen]
}

// Sequence returns the sequence number encoded in k.
func (k Key) Sequence() uint64 {
	seq, _ := k.trailer()
	return seq
}

// Kind returns the kind encoded in k.
func (k Key) Kind() Kind {
	_, kind := k.trailer()
	return kind
}

func (k Key) trailer() (uint64, Kind) {
	if !k.Valid() {
		return 0, KindValue
	}
	t := k[len(k)-trailerLen:]
	var v uint64
	for i := 0; i < trailerLen; i++ {
		v |= uint64(t[i]) << (8 * i)
	}
	return unpackTrailer(v)
}

// Comparator orders user keys for a store. The default is the byte-wise
// comparator; callers may install their own via
// flashkv.Options.WithComparator.
type Comparator interface {
	// Compare returns <0, 0, >0 as a < b, a == b, a > b under the
	// comparator's user-key order.
	Compare(a, b []byte) int
	// Name identifies the comparator; persisted in an SST's metaindex so a
	// table opened later can detect a mismatched comparator.
	Name() string
}

// BytewiseComparator is the default Comparator: plain lexicographic byte
// order.
type BytewiseComparator struct{}

func (BytewiseComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }
func (BytewiseComparator) Name() string            { return "flashkv.BytewiseComparator" }

// InternalComparator orders internal keys: user_key ascending under cmp,
// then sequence descending, then kind descending, so the newest entry for a
// user key always sorts first.
type InternalComparator struct {
	UserCmp Comparator
}

// NewInternalComparator builds an InternalComparator over cmp, defaulting to
// BytewiseComparator when cmp is nil.
func NewInternalComparator(cmp Comparator) InternalComparator {
	if cmp == nil {
		cmp = BytewiseComparator{}
	}
	return InternalComparator{UserCmp: cmp}
}

// Compare orders a before b when a's user key sorts first, or on a tie
// when a carries the higher (sequence, kind) trailer.
func (c InternalComparator) Compare(a, b Key) int {
	if n := c.UserCmp.Compare(a.UserKey(), b.UserKey()); n != 0 {
		return n
	}
	// Descending sequence, then descending kind: higher trailer value
	// sorts first, so negate the natural trailer comparison.
	at, bt := a.trailerValue(), b.trailerValue()
	switch {
	case at > bt:
		return -1
	case at < bt:
		return 1
	default:
		return 0
	}
}

func (k Key) trailerValue() uint64 {
	seq, kind := k.trailer()
	return packTrailer(seq, kind)
}

// Name identifies the internal comparator, embedding the user comparator's
// name so a mismatched user comparator is still detectable.
func (c InternalComparator) Name() string {
	return "flashkv.InternalKeyComparator/" + c.UserCmp.Name()
}

// ShortSeparator returns a short byte string s with a <= s < b, used to
// keep SST index keys small. Operates on user keys only, never on the
// internal-key trailer. Falls back to a unchanged when no strictly shorter
// separator exists.
func ShortSeparator(cmp Comparator, a, b []byte) []byte {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	diffIdx := 0
	for diffIdx < minLen && a[diffIdx] == b[diffIdx] {
		diffIdx++
	}
	if diffIdx >= minLen {
		// One is a prefix of the other; no shorter separator exists.
		return a
	}
	if a[diffIdx] < 0xff && a[diffIdx]+1 < b[diffIdx] {
		shortened := append([]byte(nil), a[:diffIdx+1]...)
		shortened[diffIdx]++
		if cmp.Compare(shortened, b) < 0 {
			return shortened
		}
	}
	return a
}

// ShortSuccessor returns a short byte string s with s >= a, used for the
// index entry of the last block in a table. Returns a unchanged when every
// byte is 0xff.
func ShortSuccessor(a []byte) []byte {
	for i, c := range a {
		if c != 0xff {
			shortened := append([]byte(nil), a[:i+1]...)
			shortened[i] = c + 1
			return shortened
		}
	}
	return a
}
