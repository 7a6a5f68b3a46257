package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/sys"
)

// Reader is a read-only view of a store file for a companion process.
//
// It takes no lock. The writer may move the cursor or wrap at any time, so
// the header is a snapshot taken at open (or at the last Refresh) and records
// overwritten since then fail validation or decode to newer data.
type Reader struct {
	mu     sync.Mutex
	path   string
	file   sys.FileHandle
	mmap   *sys.MMap
	header core.Header
	logger *slog.Logger
	closed bool
}

// OpenReader maps path read-only and decodes its header.
func OpenReader(path string, logger *slog.Logger) (_ *Reader, err error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f, err := sys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, &core.IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, &core.IOError{Op: "stat", Path: path, Err: err}
	}
	probe := make([]byte, min(fi.Size(), headerProbeSize))
	if _, err = f.ReadAt(probe, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, &core.IOError{Op: "read", Path: path, Err: err}
	}
	h, err := core.DecodeHeader(probe)
	if err != nil {
		return nil, err
	}
	if uint64(fi.Size()) < h.MaxSize {
		return nil, &core.DecodeError{Target: "header", Err: fmt.Errorf("file is %d bytes, header claims capacity %d", fi.Size(), h.MaxSize)}
	}

	m, err := sys.Map(f, int(h.MaxSize), false)
	if err != nil {
		return nil, &core.IOError{Op: "mmap", Path: path, Err: err}
	}
	return &Reader{
		path:   path,
		file:   f,
		mmap:   m,
		header: h,
		logger: logger.With("component", "Reader", "path", path),
	}, nil
}

// Header returns the header snapshot.
func (r *Reader) Header() core.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header
}

// Refresh re-reads the header from the mapping. The capacity of a store
// never changes, so the mapping stays valid.
func (r *Reader) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrClosed
	}
	buf := make([]byte, r.header.StartPos)
	if err := sys.SafeCopy(buf, 0, r.mmap.Bytes()[:r.header.StartPos]); err != nil {
		return &core.IOError{Op: "read header", Path: r.path, Err: err}
	}
	h, err := core.DecodeHeader(buf)
	if err != nil {
		return err
	}
	if h.MaxSize != r.header.MaxSize {
		return fmt.Errorf("%w: capacity changed from %d to %d", core.ErrCapacityMismatch, r.header.MaxSize, h.MaxSize)
	}
	r.header = h
	return nil
}

// Iterator returns a chronological iterator over the snapshot.
func (r *Reader) Iterator() (*Iterator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, core.ErrClosed
	}
	return NewIterator(r.mmap.Bytes(), r.header), nil
}

// Entries decodes every readable entry in chronological order.
func (r *Reader) Entries() ([]core.Entry, error) {
	it, err := r.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []core.Entry
	for it.Next() {
		out = append(out, it.At().Entry)
	}
	return out, it.Error()
}

// Close unmaps and closes the file. Calling Close again is a no-op.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.mmap.Unmap()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &core.IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}
