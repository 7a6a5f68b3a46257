package listeners

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/hooks"
	"github.com/INLOpen/loged/store"
)

func TestWrapAlerterListener_OnEvent(t *testing.T) {
	var logBuf bytes.Buffer
	listener := NewWrapAlerterListener(slog.New(slog.NewJSONHandler(&logBuf, nil)))

	t.Run("Handles OnWrap event", func(t *testing.T) {
		logBuf.Reset()
		event := hooks.NewWrapEvent(hooks.WrapPayload{Path: "a.log", SeamPos: 5000, StartPos: 4096, MaxSize: 8192, WrapCount: 3})
		require.NoError(t, listener.OnEvent(context.Background(), event))

		out := logBuf.String()
		assert.Contains(t, out, "oldest entries are being overwritten")
		assert.Contains(t, out, `"seam_pos":5000`)
		assert.Contains(t, out, `"capacity":4096`)
		assert.Contains(t, out, `"wrap_count":3`)
	})

	t.Run("Ignores other event types", func(t *testing.T) {
		logBuf.Reset()
		require.NoError(t, listener.OnEvent(context.Background(), hooks.NewPostSyncEvent(hooks.SyncPayload{})))
		assert.Empty(t, logBuf.String())
	})
}

func TestSeverityCounterListener_OnEvent(t *testing.T) {
	l := newUnpublishedSeverityCounter()
	ctx := context.Background()

	for _, p := range []hooks.PostAppendPayload{
		{Severity: core.SeverityError},
		{Severity: core.SeverityError, IsAudit: true},
		{Severity: core.SeverityWarning},
	} {
		require.NoError(t, l.OnEvent(ctx, hooks.NewPostAppendEvent(p)))
	}
	require.NoError(t, l.OnEvent(ctx, hooks.NewPolicyRejectEvent(hooks.PolicyRejectPayload{Severity: core.SeverityDebug})))
	require.NoError(t, l.OnEvent(ctx, hooks.NewPostSyncEvent(hooks.SyncPayload{})))

	assert.Equal(t, map[string]int64{"error": 2, "warning": 1}, l.Counts())
	assert.EqualValues(t, 1, l.audit.Value())
	assert.Equal(t, "1", l.rejected.Get("debug").String())
}

func TestNewSeverityCounterListener_PublishesOnce(t *testing.T) {
	a := NewSeverityCounterListener(nil)
	b := NewSeverityCounterListener(nil)
	assert.Same(t, a.entries, b.entries)
}

func TestFieldBoundsListener_OnEvent(t *testing.T) {
	var logBuf bytes.Buffer
	l := NewFieldBoundsListener(slog.New(slog.NewJSONHandler(&logBuf, nil)), []FieldRule{
		{Field: "latency_ms", Thresholds: Thresholds{Min: 0, Max: 500}},
		{Field: "cpu", Thresholds: Thresholds{Min: 0, Max: 1}, Reject: true},
	})
	ctx := context.Background()
	event := func(extra *core.Map) hooks.HookEvent {
		e := core.NewEntry()
		e.Extra = extra
		return hooks.NewPreAppendEvent(hooks.PreAppendPayload{Entry: &e})
	}

	t.Run("LogsOutlierWithoutRejecting", func(t *testing.T) {
		logBuf.Reset()
		require.NoError(t, l.OnEvent(ctx, event(core.NewMap().Set("latency_ms", core.Int(900)))))
		assert.Contains(t, logBuf.String(), "Extra field out of bounds")
		assert.Contains(t, logBuf.String(), `"value":900`)
	})

	t.Run("RejectsWhenConfigured", func(t *testing.T) {
		err := l.OnEvent(ctx, event(core.NewMap().Set("cpu", core.Float(1.5))))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"cpu"`)
	})

	t.Run("IgnoresInlierUnknownAndNonNumeric", func(t *testing.T) {
		logBuf.Reset()
		extra := core.NewMap().
			Set("latency_ms", core.Int(20)).
			Set("other", core.Int(1e9)).
			Set("cpu", core.String("high"))
		require.NoError(t, l.OnEvent(ctx, event(extra)))
		assert.Empty(t, logBuf.String())
	})

	t.Run("IgnoresOtherEvents", func(t *testing.T) {
		assert.NoError(t, l.OnEvent(ctx, hooks.NewPostAppendEvent(hooks.PostAppendPayload{})))
	})
}

func TestListeners_WiredIntoStore(t *testing.T) {
	hm := hooks.NewHookManager(nil)
	counter := newUnpublishedSeverityCounter()
	hm.Register(hooks.EventPostAppend, counter)
	hm.Register(hooks.EventOnPolicyReject, counter)
	hm.Register(hooks.EventPreAppend, NewFieldBoundsListener(nil, []FieldRule{
		{Field: "cpu", Thresholds: Thresholds{Max: 1}, Reject: true},
	}))

	s, err := store.Open(store.Options{
		Path:        filepath.Join(t.TempDir(), "wired.log"),
		MaxSize:     1 << 16,
		HookManager: hm,
	})
	require.NoError(t, err)
	defer s.Close()

	ok := core.NewEntry()
	ok.Severity = core.SeverityError
	require.NoError(t, s.Append(&ok))

	hot := core.NewEntry()
	hot.Severity = core.SeverityError
	hot.Extra.Set("cpu", core.Float(3))
	require.Error(t, s.Append(&hot))

	dropped := core.NewEntry() // debug is outside the default mask
	require.ErrorIs(t, s.Append(&dropped), core.ErrPolicyRejected)

	assert.Equal(t, map[string]int64{"error": 1}, counter.Counts())
	assert.Equal(t, "1", counter.rejected.Get("debug").String())
}
