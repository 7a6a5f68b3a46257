//go:build unix

package sys

import (
	"golang.org/x/sys/unix"
)

func mapFile(fd uintptr, size int, writable bool) (*MMap, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &MMap{data: data, fd: fd, writable: writable}, nil
}

func (m *MMap) flush() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *MMap) unmap() error {
	return unix.Munmap(m.data)
}
