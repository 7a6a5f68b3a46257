package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/hooks"
)

func testEntry(sev core.Severity, msg string) core.Entry {
	e := core.NewEntry()
	e.SenderID = "sender-1"
	e.Severity = sev
	e.Message = msg
	e.SentAt = core.Timestamp{Seconds: 1700000000, Nanos: 1}
	e.ReceivedAt = core.Timestamp{Seconds: 1700000000, Nanos: 2}
	return e
}

func encodedSize(t *testing.T, e core.Entry) uint64 {
	t.Helper()
	b, err := core.EncodeEntry(&e)
	require.NoError(t, err)
	return recordSize(uint64(len(b)))
}

func openStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "test.log")
	}
	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readDiskHeader(t *testing.T, path string) core.Header {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	h, err := core.DecodeHeader(b[:min(len(b), headerProbeSize)])
	require.NoError(t, err)
	return h
}

func replayMessages(t *testing.T, s *Store) []string {
	t.Helper()
	var msgs []string
	require.NoError(t, s.Replay(func(rec Record) error {
		msgs = append(msgs, rec.Entry.Message)
		return nil
	}))
	return msgs
}

func TestOpen_NewFileHasCapacityAndDefaultHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.log")
	s, err := CreateOrOpen(path, 1<<16)
	require.NoError(t, err)
	defer s.Close()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1<<16, fi.Size())

	want := core.DefaultHeader()
	want.MaxSize = 1 << 16
	assert.Equal(t, want, s.Header())
	assert.Equal(t, want, readDiskHeader(t, path), "a new store writes its header immediately")
	assert.Equal(t, path, s.Path())
}

func TestOpen_DefaultCapacity(t *testing.T) {
	s := openStore(t, Options{})
	assert.EqualValues(t, core.DefaultMaxSize, s.Header().MaxSize)
}

func TestOpen_Preallocate(t *testing.T) {
	// Unsupported filesystems only log; the store opens either way.
	s := openStore(t, Options{MaxSize: 1 << 16, Preallocate: true, LevelMask: core.AllLevels})
	fi, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.EqualValues(t, 1<<16, fi.Size())

	e := testEntry(core.SeverityInfo, "after prealloc")
	require.NoError(t, s.Append(&e))
	assert.Equal(t, []string{"after prealloc"}, replayMessages(t, s))
}

func TestOpen_MissingParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "x.log")
	s, err := CreateOrOpen(path, 1<<16)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, core.IsIOError(err))

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestOpen_InvalidOptionsRemovesCreatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.log")
	_, err := Open(Options{Path: path, MaxSize: 100, StartPos: 200})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestOpen_InvalidSyncMode(t *testing.T) {
	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "x.log"), SyncMode: "sometimes"})
	assert.Error(t, err)
}

func TestOpen_UndecodableHeaderLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.log")
	require.NoError(t, os.WriteFile(path, []byte("not a log store"), 0o644))

	_, err := CreateOrOpen(path, 1<<16)
	require.Error(t, err)
	assert.True(t, core.IsDecodeError(err))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "not a log store", string(b))
}

func TestOpen_ZeroFilledFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.log")
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0o644))

	s, err := CreateOrOpen(path, 1<<16)
	require.NoError(t, err)
	defer s.Close()
	assert.EqualValues(t, core.DefaultStartPos, s.Header().CurPos)
	assert.EqualValues(t, 1<<16, s.Header().MaxSize)
}

func TestOpen_ReopenPreservesCursorAndPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.log")
	s, err := Open(Options{Path: path, MaxSize: 1 << 16, LevelMask: core.AllLevels})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e := testEntry(core.SeverityInfo, "hello")
		require.NoError(t, s.Append(&e))
	}
	require.NoError(t, s.SetPolicy(core.ToMask(core.SeverityError), true))
	before := s.Header()
	require.NoError(t, s.Close())

	s2, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, before, s2.Header())
	assert.Equal(t, []string{"hello", "hello", "hello"}, replayMessages(t, s2))
}

func TestOpen_CapacityMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.log")
	s, err := CreateOrOpen(path, 1<<16)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = CreateOrOpen(path, 1<<17)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCapacityMismatch)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1<<16, fi.Size(), "a mismatched open must not resize the file")

	s, err = CreateOrOpen(path, 1<<16)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_SecondWriterIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.log")
	s, err := CreateOrOpen(path, 1<<16)
	require.NoError(t, err)

	_, err = CreateOrOpen(path, 1<<16)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrLocked)
	assert.True(t, core.IsIOError(err))

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "a locked-out open must not remove the file")

	require.NoError(t, s.Close())
	s2, err := CreateOrOpen(path, 1<<16)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestAppend_AdvancesCursorByRecordSize(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16})
	e := testEntry(core.SeverityError, "disk failure")
	size := encodedSize(t, e)

	require.NoError(t, s.Append(&e))
	h := s.Header()
	assert.Equal(t, core.DefaultStartPos+size, h.CurPos)
	assert.Zero(t, h.SeamPos)

	st := s.Stats()
	assert.EqualValues(t, 1, st.Appended)
	assert.Equal(t, size, st.Used)
	assert.False(t, st.Wrapped)
}

func TestAppend_WrapsExactlyOnce(t *testing.T) {
	e := testEntry(core.SeverityError, "same size")
	r := encodedSize(t, e)
	start := core.DefaultStartPos
	metrics := NewMetrics()
	s := openStore(t, Options{MaxSize: start + 3*r + r/2, Metrics: metrics})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(&e))
	}
	h := s.Header()
	require.Equal(t, start+3*r, h.CurPos)
	require.Zero(t, h.SeamPos)

	require.NoError(t, s.Append(&e))
	h = s.Header()
	assert.Equal(t, start+3*r, h.SeamPos, "seam is the cursor before the wrap")
	assert.Equal(t, start+r, h.CurPos, "the wrapping record is written at start_pos")
	assert.EqualValues(t, 1, s.Stats().Wraps)
	assert.EqualValues(t, 1, metrics.Wraps.Value())
	assert.EqualValues(t, 4, metrics.EntriesWritten.Value())
	assert.EqualValues(t, 4*r, metrics.BytesWritten.Value())
}

func TestAppend_TooLargeLeavesStateUnchanged(t *testing.T) {
	s := openStore(t, Options{MaxSize: core.DefaultStartPos + 64})
	before := s.Header()

	e := testEntry(core.SeverityFatal, strings.Repeat("x", 100))
	err := s.Append(&e)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEntryTooLarge)
	var tl *core.TooLargeError
	require.True(t, errors.As(err, &tl))
	assert.EqualValues(t, 64, tl.Capacity)
	assert.Equal(t, before, s.Header())
}

func TestAppend_NilEntry(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16})
	before := s.Header()
	err := s.Append(nil)
	require.Error(t, err)
	assert.True(t, core.IsEncodeError(err))
	assert.Equal(t, before, s.Header())
}

func TestAppend_AuditOnlyRejectsNonAudit(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16, AuditOnly: true})
	before := s.Header()

	e := testEntry(core.SeverityFatal, "not audit")
	err := s.Append(&e)
	require.Error(t, err)
	assert.True(t, core.IsPolicyRejected(err))
	assert.Equal(t, before, s.Header())
	assert.EqualValues(t, 1, s.Stats().Rejected)

	e.IsAudit = true
	require.NoError(t, s.Append(&e))
	assert.Greater(t, s.Header().CurPos, before.CurPos)
}

func TestAppend_LevelMaskFilters(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16})
	debug := testEntry(core.SeverityDebug, "noise")
	require.ErrorIs(t, s.Append(&debug), core.ErrPolicyRejected)

	require.NoError(t, s.SetPolicy(core.AllLevels, false))
	require.NoError(t, s.Append(&debug))
	assert.Equal(t, []string{"noise"}, replayMessages(t, s))
}

func TestAppend_InvalidSeverityIsRejected(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16})
	before := s.Header()

	e := testEntry(core.SeverityError, "unknown severity")
	e.Severity = core.Severity(0)
	require.NoError(t, s.SetPolicy(core.LevelMask(0xFF), false))
	err := s.Append(&e)
	require.ErrorIs(t, err, core.ErrPolicyRejected, "invalid severities never match a mask")
	assert.Equal(t, before.CurPos, s.Header().CurPos)
}

func TestReplay_ChronologicalAcrossCleanWraps(t *testing.T) {
	e := testEntry(core.SeverityError, "m0")
	r := encodedSize(t, e)
	s := openStore(t, Options{MaxSize: core.DefaultStartPos + 3*r + r/2})

	want := [][]string{
		{"m0"},
		{"m0", "m1"},
		{"m0", "m1", "m2"},
		{"m1", "m2", "m3"},
		{"m2", "m3", "m4"},
		{"m3", "m4", "m5"},
		{"m4", "m5", "m6"},
	}
	for i, w := range want {
		e := testEntry(core.SeverityError, "m"+string(rune('0'+i)))
		require.NoError(t, s.Append(&e))
		assert.Equal(t, w, replayMessages(t, s), "after append %d", i)
	}
}

func TestReplay_ResyncsPastPartlyOverwrittenRecord(t *testing.T) {
	small := testEntry(core.SeverityError, "aaaaaaaaaaaaaaaaaaaa")
	r := encodedSize(t, small)
	big := testEntry(core.SeverityError, strings.Repeat("B", 20+int(r/2)))
	bigSize := encodedSize(t, big)
	// big must cover all of a and part of b, leaving c intact.
	require.Greater(t, bigSize, r)
	require.Less(t, bigSize, 2*r)

	start := core.DefaultStartPos
	s := openStore(t, Options{MaxSize: start + 3*r + r/2})
	for _, msg := range []string{"a", "b", "c"} {
		e := testEntry(core.SeverityError, strings.Repeat(msg, 20))
		require.NoError(t, s.Append(&e))
	}
	require.NoError(t, s.Append(&big))
	h := s.Header()
	require.Equal(t, start+3*r, h.SeamPos)
	require.Equal(t, start+bigSize, h.CurPos)

	var got []string
	var offsets []uint64
	require.NoError(t, s.Replay(func(rec Record) error {
		got = append(got, rec.Entry.Message[:1])
		offsets = append(offsets, rec.Offset)
		return nil
	}))
	assert.Equal(t, []string{"c", "B"}, got, "the half-overwritten b record is skipped")
	assert.Equal(t, []uint64{start + 2*r, start}, offsets)
}

func TestReplay_IgnoresFrameEmbeddedInOverwrittenMessage(t *testing.T) {
	forged := core.NewEntry()
	forged.SenderID = "admin"
	forged.Severity = core.SeverityFatal
	forged.IsAudit = true
	forged.Message = "FORGED"
	payload, err := core.EncodeEntry(&forged)
	require.NoError(t, err)
	frame := appendRecord(nil, payload)

	victim := testEntry(core.SeverityError, strings.Repeat("v", 200)+string(frame)+strings.Repeat("v", 8))
	next := testEntry(core.SeverityError, "x")
	victimSize, nextSize := encodedSize(t, victim), encodedSize(t, next)
	// next must cut into the padding before the embedded frame.
	require.Less(t, nextSize, uint64(200))

	start := core.DefaultStartPos
	s := openStore(t, Options{MaxSize: start + victimSize + nextSize - 1})
	require.NoError(t, s.Append(&victim))
	require.NoError(t, s.Append(&next))
	h := s.Header()
	require.Equal(t, start+victimSize, h.SeamPos)
	require.Equal(t, start+nextSize, h.CurPos)

	var got []string
	require.NoError(t, s.Replay(func(rec Record) error {
		got = append(got, rec.Entry.SenderID+":"+rec.Entry.Message)
		return nil
	}))
	assert.Equal(t, []string{"sender-1:x"}, got)

	rest := make([]byte, h.SeamPos-h.CurPos)
	copy(rest, s.mmap.Bytes()[h.CurPos:h.SeamPos])
	assert.Equal(t, make([]byte, len(rest)), rest, "the remains of the victim record are zeroed")
}

func TestReplay_ReopenedStoreKeepsClearingOldRecords(t *testing.T) {
	e := testEntry(core.SeverityError, strings.Repeat("a", 40))
	r := encodedSize(t, e)
	big := testEntry(core.SeverityError, strings.Repeat("B", 40+int(r/2)))
	bigSize := encodedSize(t, big)
	require.Greater(t, bigSize, r)
	require.Less(t, bigSize, 2*r)

	start := core.DefaultStartPos
	path := filepath.Join(t.TempDir(), "reopen.log")
	s, err := Open(Options{Path: path, MaxSize: start + 3*r + r/2})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(&e))
	}
	require.NoError(t, s.Close())

	s = openStore(t, Options{Path: path})
	require.Equal(t, start+r, s.Header().CurPos)
	require.NoError(t, s.Append(&big))
	h := s.Header()
	require.Equal(t, start+r+bigSize, h.CurPos)

	// The record at start+2r was cut; its remains up to start+3r are cleared.
	rest := make([]byte, start+3*r-h.CurPos)
	copy(rest, s.mmap.Bytes()[h.CurPos:start+3*r])
	assert.Equal(t, make([]byte, len(rest)), rest)
	assert.Len(t, replayMessages(t, s), 2)
}

func TestReplay_StopsOnCallbackError(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16})
	for i := 0; i < 3; i++ {
		e := testEntry(core.SeverityError, "x")
		require.NoError(t, s.Append(&e))
	}
	stop := errors.New("stop")
	calls := 0
	err := s.Replay(func(Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReplay_RoundTripsEntries(t *testing.T) {
	s := openStore(t, Options{MaxSize: 1 << 16})
	e := testEntry(core.SeverityWarning, "with extra")
	e.IsAudit = true
	e.Extra.Set("user", core.String("alice")).Set("attempts", core.Int(3))
	nested := core.NewMap().Set("ip", core.String("10.0.0.1"))
	e.Extra.Set("net", core.MapValue(nested))
	require.NoError(t, s.Append(&e))

	var got []core.Entry
	require.NoError(t, s.Replay(func(rec Record) error {
		got = append(got, rec.Entry)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, e, got[0])
}

func TestSync_LeavesHeaderUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	s := openStore(t, Options{Path: path, MaxSize: 1 << 16})
	e := testEntry(core.SeverityError, "unsaved")
	require.NoError(t, s.Append(&e))
	before := s.Header()

	require.NoError(t, s.Sync())
	assert.Equal(t, before, s.Header())
	assert.EqualValues(t, core.DefaultStartPos, readDiskHeader(t, path).CurPos, "sync alone does not persist the header")

	require.NoError(t, s.Checkpoint())
	assert.Equal(t, before, readDiskHeader(t, path))
}

func TestSaveHeader_PadsRegionWithZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hdr.log")
	s := openStore(t, Options{Path: path, MaxSize: 1 << 20})
	e := testEntry(core.SeverityError, strings.Repeat("y", 200))
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Append(&e))
	}
	require.NoError(t, s.Checkpoint())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	enc, err := s.Header().Encode()
	require.NoError(t, err)
	assert.Equal(t, enc, b[:len(enc)])
	for i := len(enc); i < int(core.DefaultStartPos); i++ {
		require.Zero(t, b[i], "byte %d of the header region must be zero", i)
	}
}

func TestSyncModeAlways_PersistsHeaderAfterEachAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "always.log")
	metrics := NewMetrics()
	s := openStore(t, Options{Path: path, MaxSize: 1 << 16, SyncMode: SyncAlways, Metrics: metrics})
	e := testEntry(core.SeverityError, "durable")
	require.NoError(t, s.Append(&e))

	assert.Equal(t, s.Header(), readDiskHeader(t, path))
	assert.GreaterOrEqual(t, metrics.Syncs.Value(), int64(2))
}

func TestClose_IdempotentAndRejectsFurtherUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.log")
	s, err := CreateOrOpen(path, 1<<16)
	require.NoError(t, err)
	e := testEntry(core.SeverityError, "last words")
	require.NoError(t, s.Append(&e))
	want := s.Header()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, want, readDiskHeader(t, path), "close saves the header")

	assert.ErrorIs(t, s.Append(&e), core.ErrClosed)
	assert.ErrorIs(t, s.Sync(), core.ErrClosed)
	assert.ErrorIs(t, s.SaveHeader(), core.ErrClosed)
	assert.ErrorIs(t, s.Checkpoint(), core.ErrClosed)
	assert.ErrorIs(t, s.SetPolicy(core.AllLevels, false), core.ErrClosed)
	assert.ErrorIs(t, s.Replay(func(Record) error { return nil }), core.ErrClosed)
}

type funcListener struct {
	fn func(ev hooks.HookEvent) error
}

func (l *funcListener) OnEvent(_ context.Context, ev hooks.HookEvent) error { return l.fn(ev) }
func (l *funcListener) Priority() int { return 0 }
func (l *funcListener) IsAsync() bool { return false }

func TestHooks_PreAppendCancels(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	veto := errors.New("redacted")
	hm.Register(hooks.EventPreAppend, &funcListener{fn: func(ev hooks.HookEvent) error {
		p := ev.Payload().(hooks.PreAppendPayload)
		if strings.Contains(p.Entry.Message, "password") {
			return veto
		}
		return nil
	}})
	s := openStore(t, Options{MaxSize: 1 << 16, HookManager: hm})
	before := s.Header()

	e := testEntry(core.SeverityError, "password=hunter2")
	assert.ErrorIs(t, s.Append(&e), veto)
	assert.Equal(t, before, s.Header())

	e.Message = "fine"
	assert.NoError(t, s.Append(&e))
}

func TestHooks_LifecycleEvents(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	var mu sync.Mutex
	counts := map[hooks.EventType]int{}
	var wrap hooks.WrapPayload
	record := &funcListener{fn: func(ev hooks.HookEvent) error {
		mu.Lock()
		defer mu.Unlock()
		counts[ev.Type()]++
		if p, ok := ev.Payload().(hooks.WrapPayload); ok {
			wrap = p
		}
		return nil
	}}
	for _, et := range []hooks.EventType{
		hooks.EventPostAppend, hooks.EventOnWrap, hooks.EventOnPolicyReject,
		hooks.EventPostSync, hooks.EventPreClose, hooks.EventPostClose,
	} {
		hm.Register(et, record)
	}

	e := testEntry(core.SeverityError, "evt")
	r := encodedSize(t, e)
	s, err := Open(Options{Path: filepath.Join(t.TempDir(), "h.log"), MaxSize: core.DefaultStartPos + 2*r, HookManager: hm})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(&e))
	}
	debug := testEntry(core.SeverityDebug, "dropped")
	require.Error(t, s.Append(&debug))
	require.NoError(t, s.Close())

	assert.Equal(t, 3, counts[hooks.EventPostAppend])
	assert.Equal(t, 1, counts[hooks.EventOnWrap])
	assert.Equal(t, 1, counts[hooks.EventOnPolicyReject])
	assert.Equal(t, 1, counts[hooks.EventPreClose])
	assert.Equal(t, 1, counts[hooks.EventPostClose])
	assert.GreaterOrEqual(t, counts[hooks.EventPostSync], 1)
	assert.Equal(t, core.DefaultStartPos+2*r, wrap.SeamPos)
	assert.EqualValues(t, 1, wrap.WrapCount)
}

func TestParseSyncMode(t *testing.T) {
	for in, want := range map[string]SyncMode{"": SyncManual, "manual": SyncManual, "always": SyncAlways} {
		got, err := ParseSyncMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSyncMode("interval")
	assert.Error(t, err)
}
