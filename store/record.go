package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/sys"
)

// Record format: length (4 bytes LE) | payload (msgpack entry) | crc32 IEEE of payload (4 bytes LE)

// appendRecord frames payload and appends the record to dst.
func appendRecord(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(payload))
}

// recordSize returns the on-disk size of a record carrying n payload bytes.
func recordSize(n uint64) uint64 {
	return n + core.RecordOverhead
}

// readRecord validates the record starting at off within data[:limit] and
// returns a copy of its payload. Reads go through sys.SafeCopy so a fault
// in the mapping is reported instead of crashing the process.
func readRecord(data []byte, off, limit uint64) ([]byte, error) {
	if limit > uint64(len(data)) {
		limit = uint64(len(data))
	}
	n, err := recordLength(data, off, limit)
	if err != nil {
		return nil, err
	}
	end := off + recordSize(n)
	buf := make([]byte, n+core.ChecksumSize)
	if err := sys.SafeCopy(buf, 0, data[off+core.RecordLengthSize:end]); err != nil {
		return nil, err
	}
	payload, sum := buf[:n], binary.LittleEndian.Uint32(buf[n:])
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch at offset %d", core.ErrCorruptRecord, off)
	}
	return payload, nil
}

// recordLength reads the length prefix at off and checks that the whole
// record fits below limit. limit must not exceed len(data).
func recordLength(data []byte, off, limit uint64) (uint64, error) {
	if off+core.RecordLengthSize > limit {
		return 0, fmt.Errorf("%w: no room for length at offset %d", core.ErrCorruptRecord, off)
	}
	var lenBuf [core.RecordLengthSize]byte
	if err := sys.SafeCopy(lenBuf[:], 0, data[off:off+core.RecordLengthSize]); err != nil {
		return 0, err
	}
	n := uint64(binary.LittleEndian.Uint32(lenBuf[:]))
	if n == 0 {
		return 0, fmt.Errorf("%w: zero length at offset %d", core.ErrCorruptRecord, off)
	}
	if off+recordSize(n) > limit {
		return 0, fmt.Errorf("%w: length %d at offset %d overruns %d", core.ErrCorruptRecord, n, off, limit)
	}
	return n, nil
}

// findRecord returns the first offset in [from, limit) holding a record
// that passes validation, or limit if there is none.
func findRecord(data []byte, from, limit uint64) uint64 {
	limit = min(limit, uint64(len(data)))
	for off := from; off < limit; off++ {
		if _, err := readRecord(data, off, limit); err == nil {
			return off
		}
	}
	return limit
}

// maxPayload is the largest payload the u32 length prefix can describe.
const maxPayload = math.MaxUint32
