//go:build !unix && !windows

package sys

func mapFile(fd uintptr, size int, writable bool) (*MMap, error) {
	return nil, ErrMmapNotSupported
}

func (m *MMap) flush() error { return ErrMmapNotSupported }

func (m *MMap) unmap() error { return ErrMmapNotSupported }
