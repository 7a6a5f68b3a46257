package core

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_GetPut(t *testing.T) {
	pool := NewBufferPool(64)
	buf := pool.Get()
	require.NotNil(t, buf)
	assert.Zero(t, buf.Len())
	assert.GreaterOrEqual(t, buf.Cap(), 64)

	buf.WriteString("hello world")
	pool.Put(buf)

	again := pool.Get()
	assert.Zero(t, again.Len(), "buffers come back reset")
	pool.Put(nil)
}

func TestBufferPool_DropsOversizedBuffers(t *testing.T) {
	pool := NewBufferPool(0)
	big := bytes.NewBuffer(make([]byte, 0, maxPooledBufferSize+1))
	big.WriteString("x")
	pool.Put(big)
	assert.Equal(t, "x", big.String(), "dropped buffers are not reset")
}

func TestBufferPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := BufferPool.Get()
				b.WriteString("data")
				BufferPool.Put(b)
			}
		}()
	}
	wg.Wait()
}

func TestPool_RecycleFilter(t *testing.T) {
	created := 0
	var recycled []int
	p := NewPool(func() []int {
		created++
		return make([]int, 0, 4)
	}, func(s []int) bool {
		recycled = append(recycled, cap(s))
		return cap(s) <= 8
	})
	s := p.Get()
	assert.Equal(t, 4, cap(s))
	assert.Equal(t, 1, created)

	p.Put(s)
	p.Put(make([]int, 0, 64))
	assert.Equal(t, []int{4, 64}, recycled)
}

func TestPool_NilRecycleKeepsEverything(t *testing.T) {
	p := NewPool(func() *int { return new(int) }, nil)
	v := p.Get()
	*v = 7
	assert.NotPanics(t, func() { p.Put(v) })
}

func TestParseCompressionType(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionSnappy, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompressionType(ct.String())
		require.NoError(t, err)
		assert.Equal(t, ct, got)
	}
	got, err := ParseCompressionType("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)
	_, err = ParseCompressionType("gzip")
	assert.Error(t, err)
	assert.Equal(t, "unknown", CompressionType(99).String())
}
