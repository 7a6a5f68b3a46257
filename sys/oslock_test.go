//go:build unix || windows

package sys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockFile_ExclusiveBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.log")

	first, err := OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer second.Close()

	release, err := LockFile(first, 0)
	require.NoError(t, err)

	_, err = LockFile(second, 0)
	assert.ErrorIs(t, err, ErrLockHeld)

	start := time.Now()
	_, err = LockFile(second, 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, release())

	release2, err := LockFile(second, 0)
	require.NoError(t, err)
	assert.NoError(t, release2())
}
