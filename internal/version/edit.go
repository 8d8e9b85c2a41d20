package version

import (
	"fmt"

	"github.com/Priyanshu23/flashkv/internal/codec"
	"github.com/Priyanshu23/flashkv/internal/ikey"
)

// tag identifies one field of a serialised Edit. The tag space is closed:
// the decoder rejects anything outside 1..8.
type tag byte

const (
	tagComparator     tag = 1
	tagLogNumber      tag = 2
	tagNextFileNumber tag = 3
	tagLastSequence   tag = 4
	tagCompactPointer tag = 5
	tagDeletedFile    tag = 6
	tagNewFile        tag = 7
	tagPrevLogNumber  tag = 8
)

// ErrUnknownTag is reported when a manifest record carries a tag the
// decoder does not recognise.
var ErrUnknownTag = fmt.Errorf("version: unknown edit tag")

// deletedFileKey identifies a file to drop from a level, by file number
// (the level is recorded alongside it so VersionBuilder doesn't need to
// search every level to find it).
type deletedFileKey struct {
	level   int
	fileNum uint64
}

// compactPointer records the next key a future compaction of a level should
// start from. Nothing here schedules a compaction that consumes it; it
// round-trips through the manifest so the format is complete.
type compactPointer struct {
	level int
	key   ikey.Key
}

// Edit is a serialisable delta describing a transition from one Version to
// the next.
type Edit struct {
	HasComparator bool
	Comparator    string

	HasLogNumber bool
	LogNumber    uint64

	HasPrevLogNumber bool
	PrevLogNumber    uint64

	HasNextFileNumber bool
	NextFileNumber    uint64

	HasLastSequence bool
	LastSequence    uint64

	CompactPointers []compactPointer
	DeletedFiles    []deletedFileKey
	NewFiles        []FileMetadata
}

// AddFile records that file should be added at the given level once this
// edit is installed.
func (e *Edit) AddFile(level int, file FileMetadata) {
	file.Level = level
	e.NewFiles = append(e.NewFiles, file)
}

// DeleteFile records that fileNum should be dropped from level.
func (e *Edit) DeleteFile(level int, fileNum uint64) {
	e.DeletedFiles = append(e.DeletedFiles, deletedFileKey{level: level, fileNum: fileNum})
}

// SetCompactPointer records level's next compaction start key.
func (e *Edit) SetCompactPointer(level int, key ikey.Key) {
	e.CompactPointers = append(e.CompactPointers, compactPointer{level: level, key: append(ikey.Key(nil), key...)})
}

// Encode renders the edit as one manifest-log payload.
func (e *Edit) Encode() []byte {
	var buf []byte

	if e.HasComparator {
		buf = append(buf, byte(tagComparator))
		buf = codec.AppendLengthPrefixed(buf, []byte(e.Comparator))
	}
	if e.HasLogNumber {
		buf = append(buf, byte(tagLogNumber))
		buf = codec.AppendUint64(buf, e.LogNumber)
	}
	if e.HasPrevLogNumber {
		buf = append(buf, byte(tagPrevLogNumber))
		buf = codec.AppendUint64(buf, e.PrevLogNumber)
	}
	if e.HasNextFileNumber {
		buf = append(buf, byte(tagNextFileNumber))
		buf = codec.AppendUint64(buf, e.NextFileNumber)
	}
	if e.HasLastSequence {
		buf = append(buf, byte(tagLastSequence))
		buf = codec.AppendUint64(buf, e.LastSequence)
	}
	for _, cp := range e.CompactPointers {
		buf = append(buf, byte(tagCompactPointer))
		buf = codec.AppendUint64(buf, uint64(cp.level))
		buf = codec.AppendLengthPrefixed(buf, cp.key)
	}
	for _, df := range e.DeletedFiles {
		buf = append(buf, byte(tagDeletedFile))
		buf = codec.AppendUint64(buf, uint64(df.level))
		buf = codec.AppendUint64(buf, df.fileNum)
	}
	for _, f := range e.NewFiles {
		buf = append(buf, byte(tagNewFile))
		buf = codec.AppendUint64(buf, uint64(f.Level))
		buf = codec.AppendUint64(buf, f.FileNum)
		buf = codec.AppendUint64(buf, uint64(f.FileSize))
		buf = codec.AppendLengthPrefixed(buf, f.Largest)
		buf = codec.AppendLengthPrefixed(buf, f.Smallest)
	}

	return buf
}

// Decode parses an Edit from one manifest-log payload, reading tags until
// the record is exhausted. Unknown tags are an error.
func Decode(b []byte) (*Edit, error) {
	e := &Edit{}
	for len(b) > 0 {
		t := tag(b[0])
		b = b[1:]

		var err error
		switch t {
		case tagComparator:
			var name []byte
			name, b, err = codec.ConsumeLengthPrefixed(b)
			if err == nil {
				e.HasComparator, e.Comparator = true, string(name)
			}
		case tagLogNumber:
			e.HasLogNumber, e.LogNumber, b, err = consumeU64(b)
		case tagPrevLogNumber:
			e.HasPrevLogNumber, e.PrevLogNumber, b, err = consumeU64(b)
		case tagNextFileNumber:
			e.HasNextFileNumber, e.NextFileNumber, b, err = consumeU64(b)
		case tagLastSequence:
			e.HasLastSequence, e.LastSequence, b, err = consumeU64(b)
		case tagCompactPointer:
			var level uint64
			var key []byte
			_, level, b, err = consumeU64(b)
			if err != nil {
				break
			}
			key, b, err = codec.ConsumeLengthPrefixed(b)
			if err == nil {
				e.CompactPointers = append(e.CompactPointers, compactPointer{level: int(level), key: ikey.Key(key)})
			}
		case tagDeletedFile:
			var level, fileNum uint64
			_, level, b, err = consumeU64(b)
			if err != nil {
				break
			}
			_, fileNum, b, err = consumeU64(b)
			if err == nil {
				e.DeletedFiles = append(e.DeletedFiles, deletedFileKey{level: int(level), fileNum: fileNum})
			}
		case tagNewFile:
			var level, fileNum, fileSize uint64
			var largest, smallest []byte
			_, level, b, err = consumeU64(b)
			if err != nil {
				break
			}
			_, fileNum, b, err = consumeU64(b)
			if err != nil {
				break
			}
			_, fileSize, b, err = consumeU64(b)
			if err != nil {
				break
			}
			largest, b, err = codec.ConsumeLengthPrefixed(b)
			if err != nil {
				break
			}
			smallest, b, err = codec.ConsumeLengthPrefixed(b)
			if err == nil {
				e.NewFiles = append(e.NewFiles, FileMetadata{
					Level:    int(level),
					FileNum:  fileNum,
					FileSize: int64(fileSize),
					Smallest: ikey.Key(smallest),
					Largest:  ikey.Key(largest),
				})
			}
		default:
			return nil, ErrUnknownTag
		}
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// consumeU64 reads a single u64 scalar tag payload, returning a has=true
// sentinel alongside it to keep the switch arms in Decode uniform.
func consumeU64(b []byte) (has bool, v uint64, rest []byte, err error) {
	if len(b) < 8 {
		return false, 0, nil, fmt.Errorf("version: truncated u64 field")
	}
	return true, codec.Uint64(b), b[8:], nil
}
