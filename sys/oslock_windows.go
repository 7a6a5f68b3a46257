//go:build windows

package sys

import (
	"errors"

	"golang.org/x/sys/windows"
)

// The lock covers one byte near the top of the offset range rather than the
// data, since LockFileEx regions are mandatory and would block a reader's ReadAt.
func tryLock(f FileHandle) (func() error, error) {
	h := windows.Handle(f.Fd())
	ov := windows.Overlapped{Offset: 0xFFFFFFFF, OffsetHigh: 0x7FFFFFFF}
	err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ov)
	if err != nil {
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, errWouldBlock
		}
		return nil, err
	}
	return func() error { return windows.UnlockFileEx(h, 0, 1, 0, &ov) }, nil
}
