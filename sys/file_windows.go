//go:build windows

package sys

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// platformOpener goes through CreateFile so the share mode lets a reader
// open and map the store while the writer holds it.
type platformOpener struct{}

const shareAll = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE

func (platformOpener) Open(name string, flag int, perm os.FileMode) (*os.File, error) {
	access := uint32(windows.GENERIC_READ)
	if flag&os.O_RDWR != 0 {
		access |= windows.GENERIC_WRITE
	} else if flag&os.O_WRONLY != 0 {
		access = windows.GENERIC_WRITE
	}

	var disposition uint32
	create, trunc := flag&os.O_CREATE != 0, flag&os.O_TRUNC != 0
	switch {
	case create && flag&os.O_EXCL != 0:
		disposition = windows.CREATE_NEW
	case create && trunc:
		disposition = windows.CREATE_ALWAYS
	case create:
		disposition = windows.OPEN_ALWAYS
	case trunc:
		disposition = windows.TRUNCATE_EXISTING
	default:
		disposition = windows.OPEN_EXISTING
	}

	path, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	h, err := windows.CreateFile(path, access, shareAll, nil, disposition, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND) {
			err = os.ErrNotExist
		}
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return os.NewFile(uintptr(h), name), nil
}

func (platformOpener) Remove(name string) error {
	return os.Remove(name)
}
