//go:build !unix && !windows

package sys

func tryLock(FileHandle) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}
