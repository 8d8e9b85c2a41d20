package flashkv

import "errors"

// Sentinel errors surfaced by the public API. There is no ErrNotFound:
// logical absence is never an error, it is the found=false return from
// Get.
var (
	// ErrClosed is InvalidArgument: an operation was attempted on a closed
	// DB.
	ErrClosed = errors.New("flashkv: db is closed")

	// ErrEmptyKey is InvalidArgument: a batch op carried an empty key.
	ErrEmptyKey = errors.New("flashkv: empty key")

	// ErrCorruption marks a WAL batch record that cannot be decoded. WAL
	// replay logs it and stops at that record; it is not returned to the
	// caller. Corruption found elsewhere (bad CRC, truncated fragment,
	// unknown manifest tag, bad footer magic) is returned wrapped under the
	// lower-level package's own error, not as ErrCorruption.
	ErrCorruption = errors.New("flashkv: corruption")
)
