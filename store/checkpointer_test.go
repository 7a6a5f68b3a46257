package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/loged/core"
)

func TestCheckpointer_PersistsCursorPeriodically(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 14, LevelMask: core.AllLevels})
	e := testEntry(core.SeverityError, "tick")
	require.NoError(t, s.Append(&e))
	assert.NotEqual(t, s.Header().CurPos, readDiskHeader(t, s.Path()).CurPos, "append alone does not save the header")

	c := NewCheckpointer(s, 5*time.Millisecond)
	c.Start()
	defer c.Stop()

	want := s.Header().CurPos
	require.Eventually(t, func() bool {
		return readDiskHeader(t, s.Path()).CurPos == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckpointer_StopIsIdempotent(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 14})
	c := NewCheckpointer(s, 0)
	assert.Equal(t, DefaultCheckpointInterval, c.interval)
	c.Start()
	c.Stop()
	c.Stop()
}

func TestCheckpointer_ExitsWhenStoreCloses(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 14})
	c := NewCheckpointer(s, time.Millisecond)
	c.Start()
	require.NoError(t, s.Close())

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checkpoint loop kept running after Close")
	}
	c.Stop()
}
