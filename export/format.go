// Package export writes replayed entries to a portable NDJSON stream,
// optionally compressed, and reads such streams back.
//
// Stream layout (integers little endian):
//
//	magic "LGX1" | version u8
//	block*:  compression u8 | crc32 u32 | raw_len u32 | data_len u32 | data
//	trailer: 0xFF | entry_count u64
//
// Each block holds whole NDJSON lines. The checksum covers the stored
// (compressed) bytes, so corruption is detected before decompressing.
package export

import (
	"errors"
)

var magic = [4]byte{'L', 'G', 'X', '1'}

const (
	formatVersion uint8 = 1

	streamHeaderSize = len(magic) + 1
	blockHeaderSize  = 1 + 4 + 4 + 4
	trailerMarker    = 0xFF

	// DefaultBlockSize is the uncompressed size at which a block is flushed.
	DefaultBlockSize = 64 * 1024
	// maxBlockSize bounds the lengths a reader will allocate for.
	maxBlockSize = 64 * 1024 * 1024
)

var (
	// ErrBadMagic is returned when a stream does not start with the export magic.
	ErrBadMagic = errors.New("not an export stream")
	// ErrChecksumMismatch is returned when a block fails its checksum.
	ErrChecksumMismatch = errors.New("export block checksum mismatch")
	// ErrTruncated is returned when a stream ends before its trailer.
	ErrTruncated = errors.New("export stream truncated")
	// ErrWriterClosed is returned by Write after Close.
	ErrWriterClosed = errors.New("export writer is closed")
)
