//go:build windows

package sys

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func mapFile(fd uintptr, size int, writable bool) (*MMap, error) {
	prot := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		prot = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}
	maxHigh := uint32(uint64(size) >> 32)
	maxLow := uint32(uint64(size) & 0xffffffff)
	h, err := windows.CreateFileMapping(windows.Handle(fd), nil, prot, maxHigh, maxLow, nil)
	if err != nil {
		return nil, err
	}
	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, err
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &MMap{data: data, fd: fd, handle: uintptr(h), writable: writable}, nil
}

func (m *MMap) flush() error {
	addr := uintptr(unsafe.Pointer(&m.data[0]))
	if err := windows.FlushViewOfFile(addr, uintptr(len(m.data))); err != nil {
		return err
	}
	return windows.FlushFileBuffers(windows.Handle(m.fd))
}

func (m *MMap) unmap() error {
	addr := uintptr(unsafe.Pointer(&m.data[0]))
	err := windows.UnmapViewOfFile(addr)
	if cerr := windows.CloseHandle(windows.Handle(m.handle)); err == nil {
		err = cerr
	}
	return err
}
