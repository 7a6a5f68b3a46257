package listeners

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/INLOpen/loged/hooks"
)

var (
	// The expvars are process-global, so NewSeverityCounterListener only
	// publishes them once.
	severityMetricsOnce sync.Once
	entriesBySeverity   *expvar.Map
	rejectedBySeverity  *expvar.Map
	auditEntries        *expvar.Int
)

func initSeverityMetrics() {
	severityMetricsOnce.Do(func() {
		entriesBySeverity = expvar.NewMap("loged_entries_by_severity")
		rejectedBySeverity = expvar.NewMap("loged_rejected_by_severity")
		auditEntries = expvar.NewInt("loged_audit_entries_total")
		// Share of accepted entries that are audit entries.
		expvar.Publish("loged_audit_ratio", expvar.Func(func() interface{} {
			var total int64
			entriesBySeverity.Do(func(kv expvar.KeyValue) {
				if v, ok := kv.Value.(*expvar.Int); ok {
					total += v.Value()
				}
			})
			if total == 0 {
				return 0.0
			}
			return float64(auditEntries.Value()) / float64(total)
		}))
	})
}

// SeverityCounterListener counts appended and rejected entries per severity.
type SeverityCounterListener struct {
	logger *slog.Logger

	entries  *expvar.Map
	rejected *expvar.Map
	audit    *expvar.Int
}

// NewSeverityCounterListener creates a listener backed by the published
// process-wide counters. Register it for PostAppend and OnPolicyReject.
func NewSeverityCounterListener(logger *slog.Logger) *SeverityCounterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initSeverityMetrics()
	return &SeverityCounterListener{
		logger:   logger.With("component", "SeverityCounterListener"),
		entries:  entriesBySeverity,
		rejected: rejectedBySeverity,
		audit:    auditEntries,
	}
}

// newUnpublishedSeverityCounter is used by tests to count in isolation.
func newUnpublishedSeverityCounter() *SeverityCounterListener {
	return &SeverityCounterListener{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		entries:  new(expvar.Map).Init(),
		rejected: new(expvar.Map).Init(),
		audit:    new(expvar.Int),
	}
}

// OnEvent is called for PostAppend and OnPolicyReject events.
func (l *SeverityCounterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch payload := event.Payload().(type) {
	case hooks.PostAppendPayload:
		l.entries.Add(strings.ToLower(payload.Severity.String()), 1)
		if payload.IsAudit {
			l.audit.Add(1)
		}
	case hooks.PolicyRejectPayload:
		l.rejected.Add(strings.ToLower(payload.Severity.String()), 1)
	}
	return nil
}

// Counts returns the number of appended entries per lower-case severity name.
func (l *SeverityCounterListener) Counts() map[string]int64 {
	out := make(map[string]int64)
	l.entries.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}

// Priority defines the execution order. Lower numbers run first.
func (l *SeverityCounterListener) Priority() int {
	return 100
}

// IsAsync reports false: counting is cheap and keeps Counts consistent with
// the store right after Append returns.
func (l *SeverityCounterListener) IsAsync() bool {
	return false
}
