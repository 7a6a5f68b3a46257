package sys

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
)

// Opener performs the by-name filesystem calls of the store. Tests replace
// it with SetOpener to inject failures.
type Opener interface {
	Open(name string, flag int, perm os.FileMode) (*os.File, error)
	Remove(name string) error
}

// FileHandle is an open store or reader file. Fd is what mapping, locking
// and preallocation operate on. *os.File implements it.
type FileHandle interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Name() string
	Fd() uintptr
}

var _ FileHandle = (*os.File)(nil)

// openerBox gives atomic.Pointer a concrete type to point at.
type openerBox struct{ Opener }

var current atomic.Pointer[openerBox]

func init() {
	SetOpener(platformOpener{})
}

// SetOpener replaces the Opener used by OpenFile and Remove. A nil o
// restores the platform default.
func SetOpener(o Opener) {
	if o == nil {
		o = platformOpener{}
	}
	current.Store(&openerBox{o})
}

// OpenFile opens name through the current Opener.
func OpenFile(name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := current.Load().Open(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Remove deletes name. A file that is already gone is not an error.
func Remove(name string) error {
	err := current.Load().Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
