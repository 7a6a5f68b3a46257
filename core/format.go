package core

// This file centralizes constants related to the store file format.

// --- Layout ---
const (
	// DefaultStartPos is the size of the header region; entries start here.
	DefaultStartPos uint64 = 4 * 1024 // 4 KiB
	// DefaultMaxSize is the default total capacity of a store file.
	DefaultMaxSize uint64 = 16 * 1024 * 1024 // 16 MiB
)

// --- Versions & identification ---
const (
	// FormatVersion is the only header version this build reads and writes.
	FormatVersion int16 = 1
	// HelperText is embedded in every header so tools like `file` or
	// `strings` can identify a store.
	HelperText = "log file of github.com/INLOpen/loged"
	// NilSenderID is the sender of entries that do not name one.
	NilSenderID = "00000000-0000-0000-0000-000000000000"
)

// --- Record framing ---
// A record is: length (4 bytes, LE) | payload | checksum (4 bytes, LE).
const (
	RecordLengthSize = 4
	ChecksumSize     = 4 // uint32 CRC32 (IEEE) of the payload
	RecordOverhead   = RecordLengthSize + ChecksumSize
)

// Number of fields in the encoded header and entry arrays.
const (
	headerFieldCount = 8
	entryFieldCount  = 9
)
