//go:build !windows

package sys

import "os"

type platformOpener struct{}

func (platformOpener) Open(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (platformOpener) Remove(name string) error {
	return os.Remove(name)
}
