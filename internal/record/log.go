// Package record implements the block-framed log shared by the write-ahead
// log and the manifest: a sequence of 32 KiB blocks, each holding physical
// records of a 7-byte header (crc32c, length, type) followed by payload,
// with FULL/FIRST/MIDDLE/LAST fragmentation across block boundaries.
package record

import (
	"bufio"
	"errors"
	"io"

	"github.com/Priyanshu23/flashkv/internal/codec"
)

const (
	// BlockSize is the fixed physical block size logical records are
	// packed into.
	BlockSize = 32 * 1024

	// headerSize is the physical record header: crc32(4) + length(2) + type(1).
	headerSize = 7
)

type recordType byte

const (
	typeFull recordType = iota + 1
	typeFirst
	typeMiddle
	typeLast
)

// ErrCorruptRecord is returned when a record log has a bad checksum or an
// impossible length.
var ErrCorruptRecord = errors.New("record: corrupt record")

// errTruncated marks a fragment sequence that never completes (a FIRST with
// no LAST, or a MIDDLE/LAST with no FIRST); the reader treats it as the end
// of the usable log.
var errTruncated = errors.New("record: truncated record")

// Writer appends logical records to a block-framed log. Flush semantics
// (when to fsync the underlying file) are the caller's responsibility: the
// manifest writer syncs after every edit, the WAL syncs per batch.
type Writer struct {
	w   io.Writer
	buf [headerSize]byte

	// blockOffset is how many bytes of the current 32 KiB block have been
	// filled so far.
	blockOffset int
}

// NewWriter wraps w, appending physical blocks starting at the current
// write position (the caller is responsible for having w positioned at a
// block boundary on a brand new file; a writer resuming an existing log
// should be constructed via NewWriterAtOffset).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewWriterAtOffset wraps w whose underlying log already has priorLen bytes
// written, so fragmentation continues from the correct point within the
// current block.
func NewWriterAtOffset(w io.Writer, priorLen int64) *Writer {
	return &Writer{w: w, blockOffset: int(priorLen % BlockSize)}
}

// Append writes one logical record, fragmenting it across block boundaries
// as needed.
func (rw *Writer) Append(data []byte) error {
	begin := true
	for {
		leftover := BlockSize - rw.blockOffset
		if leftover < headerSize {
			if leftover > 0 {
				if _, err := rw.w.Write(make([]byte, leftover)); err != nil {
					return err
				}
			}
			rw.blockOffset = 0
			leftover = BlockSize
		}

		avail := leftover - headerSize
		fragment := data
		end := true
		if len(data) > avail {
			fragment = data[:avail]
			end = false
		}

		var typ recordType
		switch {
		case begin && end:
			typ = typeFull
		case begin && !end:
			typ = typeFirst
		case !begin && end:
			typ = typeLast
		default:
			typ = typeMiddle
		}

		if err := rw.writePhysical(typ, fragment); err != nil {
			return err
		}

		data = data[len(fragment):]
		begin = false
		if end {
			return nil
		}
	}
}

func (rw *Writer) writePhysical(typ recordType, payload []byte) error {
	crc := codec.NewCRC()
	crc.Write([]byte{byte(typ)})
	crc.Write(payload)
	checksum := crc.Sum32()

	codec.PutUint32(rw.buf[0:4], checksum)
	rw.buf[4] = byte(len(payload))
	rw.buf[5] = byte(len(payload) >> 8)
	rw.buf[6] = byte(typ)

	if _, err := rw.w.Write(rw.buf[:]); err != nil {
		return err
	}
	if _, err := rw.w.Write(payload); err != nil {
		return err
	}
	rw.blockOffset += headerSize + len(payload)
	return nil
}

// Reader reassembles logical records from a block-framed log. A CRC
// mismatch makes that record undeliverable; Next reports the error and the
// reader is done, stopping at the first sign of corruption rather than
// risking silently skipped data.
type Reader struct {
	br      *bufio.Reader
	pos     int
	lastErr error
}

// NewReader wraps r, whose current read position is assumed to be a block
// boundary.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, BlockSize)}
}

// Next returns the next logical record, or io.EOF when the log is
// exhausted. It returns ErrCorruptRecord on a checksum mismatch and stops
// delivering further records after that point, since the log's remaining
// framing cannot be trusted.
func (r *Reader) Next() ([]byte, error) {
	if r.lastErr != nil {
		return nil, r.lastErr
	}

	var record []byte
	inFragment := false

	for {
		typ, payload, err := r.nextPhysical()
		if err != nil {
			if err == io.EOF {
				if inFragment {
					// FIRST without a LAST: truncation, not a hard error.
					r.lastErr = io.EOF
					return nil, io.EOF
				}
				return nil, io.EOF
			}
			r.lastErr = err
			return nil, err
		}

		switch typ {
		case typeFull:
			if inFragment {
				r.lastErr = errTruncated
				return nil, errTruncated
			}
			return payload, nil
		case typeFirst:
			if inFragment {
				r.lastErr = errTruncated
				return nil, errTruncated
			}
			record = append([]byte(nil), payload...)
			inFragment = true
		case typeMiddle:
			if !inFragment {
				r.lastErr = errTruncated
				return nil, errTruncated
			}
			record = append(record, payload...)
		case typeLast:
			if !inFragment {
				r.lastErr = errTruncated
				return nil, errTruncated
			}
			record = append(record, payload...)
			return record, nil
		default:
			r.lastErr = ErrCorruptRecord
			return nil, ErrCorruptRecord
		}
	}
}

// nextPhysical reads one physical record, skipping zero-padded trailers
// shorter than headerSize.
func (r *Reader) nextPhysical() (recordType, []byte, error) {
	for {
		if BlockSize-r.pos < headerSize {
			// Remainder of the block is a zero-pad; skip to the next block.
			if err := r.skipToBlockEnd(); err != nil {
				return 0, nil, err
			}
			continue
		}

		var hdr [headerSize]byte
		if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
			// A short read here is always "nothing more to deliver",
			// whether at a clean boundary or mid-fragment.
			return 0, nil, io.EOF
		}
		r.pos += headerSize

		checksum := codec.Uint32(hdr[0:4])
		length := int(hdr[4]) | int(hdr[5])<<8
		typ := recordType(hdr[6])

		if typ == 0 && length == 0 && checksum == 0 {
			// Zero padding that happened to be header-sized; treat as
			// end of this block.
			if err := r.skipRemaining(BlockSize - r.pos%BlockSize); err != nil && err != io.EOF {
				return 0, nil, err
			}
			continue
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return 0, nil, io.EOF
		}
		r.pos += length

		crc := codec.NewCRC()
		crc.Write([]byte{byte(typ)})
		crc.Write(payload)
		if crc.Sum32() != checksum {
			return 0, nil, ErrCorruptRecord
		}

		return typ, payload, nil
	}
}

func (r *Reader) skipToBlockEnd() error {
	remaining := BlockSize - r.pos%BlockSize
	if remaining == BlockSize {
		remaining = 0
	}
	return r.skipRemaining(remaining)
}

func (r *Reader) skipRemaining(n int) error {
	if n <= 0 {
		r.pos = 0
		return nil
	}
	discarded, err := r.br.Discard(n)
	r.pos += discarded
	if r.pos >= BlockSize {
		r.pos = 0
	}
	if err != nil {
		return io.EOF
	}
	return nil
}
