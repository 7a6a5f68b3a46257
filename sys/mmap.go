package sys

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrMmapNotSupported is returned on platforms without memory mapping.
var ErrMmapNotSupported = errors.New("memory mapping not supported on this platform")

// MMap is a shared mapping of the first len(Bytes()) bytes of a file.
// Writes into Bytes() reach the file; Flush makes them durable.
type MMap struct {
	data     []byte
	fd       uintptr
	handle   uintptr // mapping object handle (windows only)
	writable bool
}

// Map maps size bytes of f starting at offset 0. The file must already be
// at least size bytes long.
func Map(f FileHandle, size int, writable bool) (*MMap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid mapping size %d", size)
	}
	return mapFile(f.Fd(), size, writable)
}

// Bytes returns the mapped region. It must not be used after Unmap.
func (m *MMap) Bytes() []byte {
	return m.data
}

func (m *MMap) Len() int {
	return len(m.data)
}

// Flush synchronously writes dirty pages back to the file.
func (m *MMap) Flush() error {
	if m.data == nil {
		return errors.New("mapping is closed")
	}
	if !m.writable {
		return nil
	}
	return m.flush()
}

// Unmap releases the mapping. It is safe to call more than once.
func (m *MMap) Unmap() error {
	if m.data == nil {
		return nil
	}
	err := m.unmap()
	m.data = nil
	return err
}

// SafeCopy copies src into dst at off. A fault while touching the mapping
// (for example SIGBUS when the backing filesystem is full) is returned as an
// error instead of crashing the process.
func SafeCopy(dst []byte, off int, src []byte) (err error) {
	if off < 0 || off+len(src) > len(dst) {
		return fmt.Errorf("copy of %d bytes at offset %d out of range [0, %d)", len(src), off, len(dst))
	}
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fault while writing mapped memory: %v", r)
		}
	}()
	copy(dst[off:], src)
	return nil
}

// SafeZero clears dst[off:off+n], recovering from mapping faults like SafeCopy.
func SafeZero(dst []byte, off, n int) (err error) {
	if n <= 0 {
		return nil
	}
	if off < 0 || off+n > len(dst) {
		return fmt.Errorf("zero of %d bytes at offset %d out of range [0, %d)", n, off, len(dst))
	}
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fault while writing mapped memory: %v", r)
		}
	}()
	clear(dst[off : off+n])
	return nil
}
