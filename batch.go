package flashkv

import (
	"fmt"

	"github.com/Priyanshu23/flashkv/internal/codec"
	"github.com/Priyanshu23/flashkv/internal/ikey"
)

// batchOp is one operation inside a Batch: a Put or a Delete.
type batchOp struct {
	kind  ikey.Kind
	key   []byte
	value []byte
}

// Batch groups operations that apply atomically under one contiguous
// sequence-number range. A Batch is not safe for concurrent use.
type Batch struct {
	seq uint64
	ops []batchOp
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put appends a value write for key to the batch.
func (b *Batch) Put(key, value []byte) *Batch {
	b.ops = append(b.ops, batchOp{kind: ikey.KindValue, key: key, value: value})
	return b
}

// Delete appends a tombstone for key to the batch.
func (b *Batch) Delete(key []byte) *Batch {
	b.ops = append(b.ops, batchOp{kind: ikey.KindDeletion, key: key})
	return b
}

// Count returns the number of operations queued in the batch.
func (b *Batch) Count() int { return len(b.ops) }

// validate rejects a batch containing an empty key before any state
// changes.
func (b *Batch) validate() error {
	for _, op := range b.ops {
		if len(op.key) == 0 {
			return ErrEmptyKey
		}
	}
	return nil
}

// encode renders the batch as one WAL record payload:
//
//	seq: u64 little-endian
//	count: u32 little-endian
//	repeated count times:
//	  kind: u8 (0=Value, 1=Deletion)
//	  key_len: varint32 ; key_bytes
//	  if Value: value_len: varint32 ; value_bytes
func (b *Batch) encode() []byte {
	buf := make([]byte, 0, 12+len(b.ops)*16)
	buf = codec.AppendUint64(buf, b.seq)
	buf = codec.AppendUint32(buf, uint32(len(b.ops)))
	for _, op := range b.ops {
		buf = append(buf, byte(op.kind))
		buf = codec.AppendVarint32(buf, uint32(len(op.key)))
		buf = append(buf, op.key...)
		if op.kind == ikey.KindValue {
			buf = codec.AppendVarint32(buf, uint32(len(op.value)))
			buf = append(buf, op.value...)
		}
	}
	return buf
}

// decodeBatch reverses encode; WAL replay during recovery runs every
// surviving record through it.
func decodeBatch(b []byte) (*Batch, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("flashkv: truncated batch header: %w", ErrCorruption)
	}
	seq := codec.Uint64(b)
	b = b[8:]
	count := codec.Uint32(b)
	b = b[4:]

	batch := &Batch{seq: seq}
	for i := uint32(0); i < count; i++ {
		if len(b) < 1 {
			return nil, fmt.Errorf("flashkv: truncated batch op %d: %w", i, ErrCorruption)
		}
		kind := ikey.Kind(b[0])
		b = b[1:]

		keyLen, rest, err := codec.ConsumeVarint32(b)
		if err != nil {
			return nil, fmt.Errorf("flashkv: batch op %d: %w", i, err)
		}
		b = rest
		if uint64(len(b)) < uint64(keyLen) {
			return nil, fmt.Errorf("flashkv: truncated batch key %d: %w", i, ErrCorruption)
		}
		key := append([]byte(nil), b[:keyLen]...)
		b = b[keyLen:]

		var value []byte
		if kind == ikey.KindValue {
			valLen, rest, err := codec.ConsumeVarint32(b)
			if err != nil {
				return nil, fmt.Errorf("flashkv: batch op %d: %w", i, err)
			}
			b = rest
			if uint64(len(b)) < uint64(valLen) {
				return nil, fmt.Errorf("flashkv: truncated batch value %d: %w", i, ErrCorruption)
			}
			value = append([]byte(nil), b[:valLen]...)
			b = b[valLen:]
		}

		batch.ops = append(batch.ops, batchOp{kind: kind, key: key, value: value})
	}
	return batch, nil
}
