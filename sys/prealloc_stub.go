//go:build !linux

package sys

// Preallocate reports ErrPreallocNotSupported: only the Linux build has a
// fallocate path. The store treats that as a debug-level condition.
func Preallocate(f FileHandle, size int64) error {
	return ErrPreallocNotSupported
}
