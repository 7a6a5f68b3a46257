package sys

import (
	"errors"
	"time"
)

var (
	// ErrLockHeld means another handle owns the exclusive lock.
	ErrLockHeld               = errors.New("file is locked by another process")
	ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")

	// errWouldBlock is returned by tryLock when the lock is busy.
	errWouldBlock = errors.New("lock would block")
)

const lockRetryInterval = 25 * time.Millisecond

// LockFile takes an exclusive advisory lock on the open file f. While the
// lock is held elsewhere it retries until timeout elapses, then fails with
// ErrLockHeld; a zero timeout tries once. The returned function releases
// the lock and leaves f open.
func LockFile(f FileHandle, timeout time.Duration) (release func() error, err error) {
	deadline := time.Now().Add(timeout)
	for {
		release, err = tryLock(f)
		if !errors.Is(err, errWouldBlock) {
			return release, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockHeld
		}
		time.Sleep(lockRetryInterval)
	}
}
