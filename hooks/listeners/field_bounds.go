package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/hooks"
)

// Thresholds defines the min/max acceptable values for a numeric extra field.
type Thresholds struct {
	Min float64
	Max float64
}

// FieldRule checks one top-level key of an entry's Extra payload.
type FieldRule struct {
	Field      string
	Thresholds Thresholds
	// Reject cancels the append instead of only logging it.
	Reject bool
}

// FieldBoundsListener checks numeric Extra fields of incoming entries
// against configured thresholds before they are written.
type FieldBoundsListener struct {
	logger *slog.Logger
	rules  map[string]FieldRule
}

// NewFieldBoundsListener creates a PreAppend listener from rules. A later
// rule for the same field replaces an earlier one.
func NewFieldBoundsListener(logger *slog.Logger, rules []FieldRule) *FieldBoundsListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ruleMap := make(map[string]FieldRule, len(rules))
	for _, r := range rules {
		ruleMap[r.Field] = r
	}
	return &FieldBoundsListener{
		logger: logger.With("component", "FieldBoundsListener"),
		rules:  ruleMap,
	}
}

// OnEvent handles PreAppend events.
func (l *FieldBoundsListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPreAppend {
		return nil
	}
	payload, ok := event.Payload().(hooks.PreAppendPayload)
	if !ok || payload.Entry == nil {
		l.logger.Error("Received PreAppend event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	var violation error
	payload.Entry.Extra.Range(func(key string, v core.Value) bool {
		rule, ok := l.rules[key]
		if !ok {
			return true
		}
		n, ok := numeric(v)
		if !ok || (n >= rule.Thresholds.Min && n <= rule.Thresholds.Max) {
			return true
		}
		l.logger.Warn("Extra field out of bounds",
			"sender_id", payload.Entry.SenderID,
			"field", key,
			"value", n,
			"min_threshold", rule.Thresholds.Min,
			"max_threshold", rule.Thresholds.Max,
			"rejected", rule.Reject,
		)
		if rule.Reject {
			violation = fmt.Errorf("extra field %q value %v outside [%v, %v]", key, n, rule.Thresholds.Min, rule.Thresholds.Max)
			return false
		}
		return true
	})
	return violation
}

func numeric(v core.Value) (float64, bool) {
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	if u, ok := v.AsUint(); ok {
		return float64(u), true
	}
	return 0, false
}

// Priority defines the execution order.
func (l *FieldBoundsListener) Priority() int { return 100 }

// IsAsync is ignored for Pre-hooks, which always run synchronously.
func (l *FieldBoundsListener) IsAsync() bool { return false }
