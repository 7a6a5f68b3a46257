//go:build linux

package sys

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFilesystems are the statfs magic numbers whose fallocate mode 0
// really reserves blocks.
var fallocateFilesystems = map[int64]string{
	0xEF53:     "ext4",
	0x58465342: "xfs",
	0x9123683E: "btrfs",
	0x01021994: "tmpfs",
	0x794C7630: "overlayfs",
	0xF2F52010: "f2fs",
	0x2FC12FC1: "zfs",
}

// Preallocate reserves disk blocks for the first size bytes of f, so stores
// through a shared mapping cannot fault later on a full filesystem.
func Preallocate(f FileHandle, size int64) error {
	if size <= 0 {
		return nil
	}
	fd := int(f.Fd())

	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return fmt.Errorf("%w: statfs: %v", ErrPreallocNotSupported, err)
	}
	if _, ok := fallocateFilesystems[int64(st.Type)]; !ok {
		return fmt.Errorf("%w: filesystem type %#x", ErrPreallocNotSupported, st.Type)
	}

	for {
		err := unix.Fallocate(fd, 0, 0, size)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.ENOSYS):
			return ErrPreallocNotSupported
		}
		return &os.PathError{Op: "fallocate", Path: f.Name(), Err: err}
	}
}
