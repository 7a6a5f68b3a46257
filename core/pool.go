package core

import (
	"bytes"
	"sync"
)

// Pool is a typed sync.Pool. recycle runs on Put and decides whether the
// item is worth keeping; it is also where items get cleared.
type Pool[T any] struct {
	p       sync.Pool
	recycle func(T) bool
}

func NewPool[T any](newItem func() T, recycle func(T) bool) *Pool[T] {
	pl := &Pool[T]{recycle: recycle}
	pl.p.New = func() any { return newItem() }
	return pl
}

func (pl *Pool[T]) Get() T { return pl.p.Get().(T) }

func (pl *Pool[T]) Put(item T) {
	if pl.recycle != nil && !pl.recycle(item) {
		return
	}
	pl.p.Put(item)
}

// Record and export block encoding borrow scratch buffers from BufferPool.
// Buffers that grew past maxPooledBufferSize are left to the GC.
const (
	DefaultBufferSize   = 4 * 1024
	maxPooledBufferSize = 1 << 20
)

var BufferPool = NewBufferPool(DefaultBufferSize)

func NewBufferPool(capacity int) *Pool[*bytes.Buffer] {
	return NewPool(
		func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, capacity)) },
		func(b *bytes.Buffer) bool {
			if b == nil || b.Cap() > maxPooledBufferSize {
				return false
			}
			b.Reset()
			return true
		},
	)
}
