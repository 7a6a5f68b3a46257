package sys

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOpener struct {
	openErr error
	removed []string
}

func (fo *failingOpener) Open(name string, flag int, perm os.FileMode) (*os.File, error) {
	return nil, fo.openErr
}

func (fo *failingOpener) Remove(name string) error {
	fo.removed = append(fo.removed, name)
	return os.ErrNotExist
}

func TestSetOpener_InjectsImplementation(t *testing.T) {
	injected := errors.New("injected open failure")
	ff := &failingOpener{openErr: injected}
	SetOpener(ff)
	t.Cleanup(func() { SetOpener(nil) })

	_, err := OpenFile("whatever", os.O_RDONLY, 0)
	assert.ErrorIs(t, err, injected)

	require.NoError(t, Remove("x"), "ErrNotExist from the opener is swallowed")
	assert.Equal(t, []string{"x"}, ff.removed)
}

func TestRemove_MissingFileIsNotAnError(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "absent")))
}

func TestOpenFile_MissingParent(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "no", "such", "dir", "f.log"), os.O_CREATE|os.O_RDWR, 0o644)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestOpenFile_ReadWriteAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.log")
	f, err := OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("abc"), 3)
	require.NoError(t, err)
	buf := make([]byte, 6)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 'a', 'b', 'c'}, buf)
	assert.Equal(t, path, f.Name())

	fi, err := f.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 6, fi.Size())
}
