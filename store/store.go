package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/hooks"
	"github.com/INLOpen/loged/sys"
)

// SyncMode defines when the store flushes the mapping to disk.
type SyncMode string

const (
	SyncManual SyncMode = "manual" // Flush only on Sync, Checkpoint and Close
	SyncAlways SyncMode = "always" // Checkpoint after every append (highest durability, lowest throughput)
)

// ParseSyncMode maps a config string to a SyncMode. The empty string means manual.
func ParseSyncMode(s string) (SyncMode, error) {
	switch SyncMode(s) {
	case "", SyncManual:
		return SyncManual, nil
	case SyncAlways:
		return SyncAlways, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// headerProbeSize bounds how much of an existing file is read to find its header.
const headerProbeSize = 4096

// Options holds configuration for a Store.
type Options struct {
	Path string
	// MaxSize is the file capacity. Zero adopts the capacity of an existing
	// file, or core.DefaultMaxSize for a new one.
	MaxSize uint64
	// StartPos is the header region size for new files (zero means
	// core.DefaultStartPos).
	StartPos uint64
	// LevelMask and AuditOnly seed the policy of a new file. An existing file
	// keeps its persisted policy; use SetPolicy to change it.
	LevelMask core.LevelMask
	AuditOnly bool

	SyncMode SyncMode
	// Preallocate reserves disk blocks for the whole capacity so writes
	// through the mapping cannot fault on a full filesystem.
	Preallocate bool
	// LockTimeout is how long Open waits for another writer to let go.
	LockTimeout time.Duration

	Logger      *slog.Logger
	Metrics     *Metrics
	HookManager hooks.HookManager
}

// Store is an open, memory-mapped log file. It owns the mapping, the file
// descriptor and an exclusive OS lock until Close.
type Store struct {
	mu sync.Mutex

	path    string
	file    sys.FileHandle
	mmap    *sys.MMap
	release func() error
	header  core.Header
	closed  bool
	// tail is the start of the oldest record that survives in
	// [CurPos, SeamPos) after a wrap. Bytes between CurPos and tail are kept
	// zeroed.
	tail uint64

	syncMode    SyncMode
	logger      *slog.Logger
	metrics     *Metrics
	hookManager hooks.HookManager

	appended int64
	rejected int64
	wraps    int64
}

// CreateOrOpen opens path with default options and the given capacity.
func CreateOrOpen(path string, maxSize uint64) (*Store, error) {
	return Open(Options{Path: path, MaxSize: maxSize})
}

// Open creates or opens the store file at opts.Path and maps it.
//
// A new file (or one whose header region is still all zero) gets a default
// header which is written immediately. An existing file keeps its header;
// a non-zero opts.MaxSize that differs from the persisted capacity fails
// with core.ErrCapacityMismatch before anything is modified. On failure no
// Store is returned and a file created by this call is removed.
func Open(opts Options) (_ *Store, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger := opts.Logger.With("component", "Store", "path", opts.Path)
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.HookManager == nil {
		opts.HookManager = hooks.NewHookManager(opts.Logger)
	}
	syncMode, err := ParseSyncMode(string(opts.SyncMode))
	if err != nil {
		return nil, err
	}
	if opts.Path == "" {
		return nil, &core.IOError{Op: "open", Err: errors.New("empty path")}
	}

	_, statErr := os.Stat(opts.Path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := sys.OpenFile(opts.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &core.IOError{Op: "open", Path: opts.Path, Err: err}
	}

	s := &Store{
		path:        opts.Path,
		file:        f,
		syncMode:    syncMode,
		logger:      logger,
		metrics:     opts.Metrics,
		hookManager: opts.HookManager,
	}
	defer func() {
		if err != nil {
			s.abandon(created)
		}
	}()

	s.release, err = sys.LockFile(f, opts.LockTimeout)
	if err != nil {
		if errors.Is(err, sys.ErrLockHeld) {
			err = core.ErrLocked
		}
		return nil, &core.IOError{Op: "lock", Path: opts.Path, Err: err}
	}

	header, fresh, err := s.loadHeader(opts)
	if err != nil {
		return nil, err
	}
	if header.MaxSize > math.MaxInt {
		return nil, &core.IOError{Op: "mmap", Path: opts.Path, Err: fmt.Errorf("capacity %d exceeds addressable memory", header.MaxSize)}
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, &core.IOError{Op: "stat", Path: opts.Path, Err: err}
	}
	if uint64(fi.Size()) != header.MaxSize {
		if err = f.Truncate(int64(header.MaxSize)); err != nil {
			return nil, &core.IOError{Op: "truncate", Path: opts.Path, Err: err}
		}
	}
	if opts.Preallocate {
		if perr := sys.Preallocate(f, int64(header.MaxSize)); perr != nil {
			if !errors.Is(perr, sys.ErrPreallocNotSupported) {
				return nil, &core.IOError{Op: "preallocate", Path: opts.Path, Err: perr}
			}
			logger.Debug("Preallocation not supported, continuing without it")
		}
	}

	s.mmap, err = sys.Map(f, int(header.MaxSize), true)
	if err != nil {
		return nil, &core.IOError{Op: "mmap", Path: opts.Path, Err: err}
	}
	s.header = header
	s.tail = header.CurPos
	if header.Wrapped() && header.CurPos < header.SeamPos {
		s.tail = findRecord(s.mmap.Bytes(), header.CurPos, header.SeamPos)
	}

	if fresh {
		if err = s.saveHeaderLocked(); err != nil {
			return nil, err
		}
		if err = s.syncLocked(); err != nil {
			return nil, err
		}
		logger.Info("Created store", "max_size", header.MaxSize, "start_pos", header.StartPos, "level_mask", header.LevelMask.String())
	} else {
		logger.Info("Opened store", "cur_pos", header.CurPos, "seam_pos", header.SeamPos, "max_size", header.MaxSize)
	}
	return s, nil
}

// loadHeader decides the header for the file: the persisted one, or a fresh
// one built from opts when the header region is empty.
func (s *Store) loadHeader(opts Options) (core.Header, bool, error) {
	fi, err := s.file.Stat()
	if err != nil {
		return core.Header{}, false, &core.IOError{Op: "stat", Path: s.path, Err: err}
	}

	probe := make([]byte, min(fi.Size(), headerProbeSize))
	if len(probe) > 0 {
		if _, err := s.file.ReadAt(probe, 0); err != nil && !errors.Is(err, io.EOF) {
			return core.Header{}, false, &core.IOError{Op: "read", Path: s.path, Err: err}
		}
	}

	if isZero(probe) {
		h := core.DefaultHeader()
		if opts.StartPos != 0 {
			h.StartPos = opts.StartPos
		}
		h.CurPos = h.StartPos
		if opts.MaxSize != 0 {
			h.MaxSize = opts.MaxSize
		}
		if opts.LevelMask != 0 {
			h.LevelMask = opts.LevelMask
		}
		h.AuditOnly = opts.AuditOnly
		if err := h.Validate(); err != nil {
			return core.Header{}, false, fmt.Errorf("invalid store options: %w", err)
		}
		return h, true, nil
	}

	h, err := core.DecodeHeader(probe)
	if err != nil {
		return core.Header{}, false, err
	}
	if opts.MaxSize != 0 && opts.MaxSize != h.MaxSize {
		return core.Header{}, false, fmt.Errorf("%w: %s has capacity %d, requested %d", core.ErrCapacityMismatch, s.path, h.MaxSize, opts.MaxSize)
	}
	if opts.StartPos != 0 && opts.StartPos != h.StartPos {
		return core.Header{}, false, fmt.Errorf("%w: %s has start_pos %d, requested %d", core.ErrCapacityMismatch, s.path, h.StartPos, opts.StartPos)
	}
	return h, false, nil
}

// abandon releases whatever a failed Open acquired.
func (s *Store) abandon(created bool) {
	if s.mmap != nil {
		_ = s.mmap.Unmap()
	}
	if s.release != nil {
		_ = s.release()
	}
	_ = s.file.Close()
	if created {
		if err := sys.Remove(s.path); err != nil {
			s.logger.Warn("Failed to remove file created by failed open", "error", err)
		}
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Path returns the file path of the store.
func (s *Store) Path() string {
	return s.path
}

// Header returns a snapshot of the in-memory header.
func (s *Store) Header() core.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// SetPolicy replaces the level mask and audit-only flag. The change is
// persisted by the next SaveHeader, Checkpoint or Close.
func (s *Store) SetPolicy(mask core.LevelMask, auditOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	s.header.LevelMask = mask
	s.header.AuditOnly = auditOnly
	s.logger.Info("Store policy changed", "level_mask", mask.String(), "audit_only", auditOnly)
	return nil
}

// SaveHeader writes the in-memory header into the header region of the
// mapping. It does not flush; call Sync for durability.
func (s *Store) SaveHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	return s.saveHeaderLocked()
}

func (s *Store) saveHeaderLocked() error {
	b, err := s.header.Encode()
	if err != nil {
		return err
	}
	if uint64(len(b)) > s.header.StartPos {
		return &core.EncodeError{
			Target: "header",
			Err:    fmt.Errorf("encoded header is %d bytes, header region holds %d", len(b), s.header.StartPos),
		}
	}
	data := s.mmap.Bytes()
	if err := sys.SafeCopy(data, 0, b); err != nil {
		return &core.IOError{Op: "write header", Path: s.path, Err: err}
	}
	// Clear what is left of a longer previous header.
	if err := sys.SafeZero(data, len(b), int(s.header.StartPos)-len(b)); err != nil {
		return &core.IOError{Op: "write header", Path: s.path, Err: err}
	}
	s.trigger(hooks.NewPostSaveHeaderEvent(hooks.SaveHeaderPayload{Path: s.path, Header: s.header}))
	return nil
}

// Append applies the store policy to e, encodes it and writes it at the
// cursor, wrapping to the start of the entry region when the record does
// not fit before the end of the file. Older records are overwritten.
func (s *Store) Append(e *core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	if e == nil {
		return &core.EncodeError{Target: "entry", Err: errors.New("nil entry")}
	}

	if err := s.header.Accepts(e); err != nil {
		s.rejected++
		add(s.metrics.Rejected, 1)
		var pe *core.PolicyError
		if errors.As(err, &pe) {
			s.trigger(hooks.NewPolicyRejectEvent(hooks.PolicyRejectPayload{
				Path: s.path, Severity: e.Severity, IsAudit: e.IsAudit, Reason: pe.Reason,
			}))
		}
		return err
	}

	if err := s.hookManager.Trigger(context.Background(), hooks.NewPreAppendEvent(hooks.PreAppendPayload{Path: s.path, Entry: e})); err != nil {
		return err
	}

	payload, err := core.EncodeEntry(e)
	if err != nil {
		return err
	}
	size := recordSize(uint64(len(payload)))
	if size > s.header.Capacity() || uint64(len(payload)) > maxPayload {
		return &core.TooLargeError{Size: size, Capacity: s.header.Capacity()}
	}

	h := s.header
	wrapped := false
	if h.CurPos+size > h.MaxSize {
		h.SeamPos = h.CurPos
		h.CurPos = h.StartPos
		s.tail = h.StartPos
		wrapped = true
	}
	// Walk the old length prefixes before the new record overwrites them.
	clearTo := s.skipOverwritten(h, h.CurPos+size)

	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)
	buf.Grow(int(size))
	record := appendRecord(buf.AvailableBuffer(), payload)
	if err := sys.SafeCopy(s.mmap.Bytes(), int(h.CurPos), record); err != nil {
		return &core.IOError{Op: "write record", Path: s.path, Err: err}
	}
	offset := h.CurPos
	h.CurPos += size
	s.header = h
	if h.CurPos < clearTo {
		if err := sys.SafeZero(s.mmap.Bytes(), int(h.CurPos), int(clearTo-h.CurPos)); err != nil {
			return &core.IOError{Op: "clear overwritten record", Path: s.path, Err: err}
		}
	}

	s.appended++
	add(s.metrics.EntriesWritten, 1)
	add(s.metrics.BytesWritten, int64(size))
	if wrapped {
		s.wraps++
		add(s.metrics.Wraps, 1)
		s.logger.Debug("Store wrapped", "seam_pos", h.SeamPos, "wraps", s.wraps)
		s.trigger(hooks.NewWrapEvent(hooks.WrapPayload{
			Path: s.path, SeamPos: h.SeamPos, StartPos: h.StartPos, MaxSize: h.MaxSize, WrapCount: s.wraps,
		}))
	}
	s.trigger(hooks.NewPostAppendEvent(hooks.PostAppendPayload{
		Path: s.path, Severity: e.Severity, IsAudit: e.IsAudit, Offset: offset, RecordSize: int(size), Wrapped: wrapped,
	}))

	if s.syncMode == SyncAlways {
		if err := s.saveHeaderLocked(); err != nil {
			return err
		}
		return s.syncLocked()
	}
	return nil
}

// skipOverwritten moves tail past every older record that starts before
// end and returns how far the remains of the last one reach. Append zeroes
// [end, returned) so the resync scan after a wrap cannot pick up a frame
// embedded in stale message bytes.
func (s *Store) skipOverwritten(h core.Header, end uint64) uint64 {
	if !h.Wrapped() {
		return end
	}
	data := s.mmap.Bytes()
	for s.tail < end && s.tail < h.SeamPos {
		n, err := recordLength(data, s.tail, h.SeamPos)
		if err != nil {
			// Not a chain this process wrote, e.g. after a crash lost the
			// header. Settle for the first frame a reader would accept.
			s.logger.Debug("Record chain broken, rescanning", "offset", s.tail, "error", err)
			s.tail = findRecord(data, end, h.SeamPos)
			break
		}
		s.tail += recordSize(n)
	}
	return min(s.tail, h.SeamPos)
}

// Sync flushes the whole mapping to disk. The in-memory header is not
// written first; use Checkpoint for that.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	return s.syncLocked()
}

func (s *Store) syncLocked() error {
	start := time.Now()
	err := s.mmap.Flush()
	if err != nil {
		err = &core.IOError{Op: "msync", Path: s.path, Err: err}
	} else {
		add(s.metrics.Syncs, 1)
	}
	s.trigger(hooks.NewPostSyncEvent(hooks.SyncPayload{Path: s.path, Duration: time.Since(start), Error: err}))
	return err
}

// Checkpoint saves the header and flushes the mapping.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	if err := s.saveHeaderLocked(); err != nil {
		return err
	}
	return s.syncLocked()
}

// Close saves the header, flushes, unmaps, unlocks and closes the file.
// Resources are released even when saving fails. Calling Close again is a
// no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.hookManager.Trigger(context.Background(), hooks.NewPreCloseEvent(hooks.ClosePayload{Path: s.path, Header: s.header})); err != nil {
		s.logger.Warn("PreClose hook failed, closing anyway", "error", err)
	}

	var errs []error
	if err := s.saveHeaderLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := s.syncLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := s.mmap.Unmap(); err != nil {
		errs = append(errs, &core.IOError{Op: "munmap", Path: s.path, Err: err})
	}
	if err := s.release(); err != nil {
		errs = append(errs, &core.IOError{Op: "unlock", Path: s.path, Err: err})
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, &core.IOError{Op: "close", Path: s.path, Err: err})
	}
	s.closed = true

	err := errors.Join(errs...)
	s.trigger(hooks.NewPostCloseEvent(hooks.ClosePayload{Path: s.path, Header: s.header, Error: err}))
	if err != nil {
		s.logger.Error("Store closed with errors", "error", err)
	} else {
		s.logger.Info("Store closed", "cur_pos", s.header.CurPos, "seam_pos", s.header.SeamPos)
	}
	return err
}

// Replay calls fn for every readable record in chronological order while
// holding the store lock. Returning an error from fn stops the replay.
func (s *Store) Replay(fn func(rec Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	it := NewIterator(s.mmap.Bytes(), s.header)
	defer it.Close()
	for it.Next() {
		if err := fn(it.At()); err != nil {
			return err
		}
	}
	return it.Error()
}

// Stats describes the store for monitoring and the info command.
type Stats struct {
	Path      string
	Capacity  uint64
	Used      uint64
	CurPos    uint64
	SeamPos   uint64
	Wrapped   bool
	Appended  int64
	Rejected  int64
	Wraps     int64
	LevelMask core.LevelMask
	AuditOnly bool
}

// Stats returns counters for this store instance and the occupancy of the
// entry region.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.header
	used := h.CurPos - h.StartPos
	if h.Wrapped() && h.SeamPos > h.CurPos {
		used += h.SeamPos - h.CurPos
	}
	return Stats{
		Path:      s.path,
		Capacity:  h.Capacity(),
		Used:      used,
		CurPos:    h.CurPos,
		SeamPos:   h.SeamPos,
		Wrapped:   h.Wrapped(),
		Appended:  s.appended,
		Rejected:  s.rejected,
		Wraps:     s.wraps,
		LevelMask: h.LevelMask,
		AuditOnly: h.AuditOnly,
	}
}

// trigger fires a non-cancellable event; listener errors are logged by the manager.
func (s *Store) trigger(event hooks.HookEvent) {
	_ = s.hookManager.Trigger(context.Background(), event)
}
