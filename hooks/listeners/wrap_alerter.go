package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/loged/hooks"
)

// WrapAlerterListener logs a warning each time a store wraps around and
// starts overwriting its oldest entries. Frequent wraps mean the capacity is
// too small for the retention operators expect.
type WrapAlerterListener struct {
	logger *slog.Logger
}

// NewWrapAlerterListener creates a new listener for OnWrap events.
func NewWrapAlerterListener(logger *slog.Logger) *WrapAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WrapAlerterListener{
		logger: logger.With("component", "WrapAlerterListener"),
	}
}

// OnEvent handles the OnWrap event.
func (l *WrapAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnWrap {
		return nil
	}

	payload, ok := event.Payload().(hooks.WrapPayload)
	if !ok {
		l.logger.Error("Received OnWrap event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	l.logger.Warn("Log store wrapped, oldest entries are being overwritten",
		"path", payload.Path,
		"seam_pos", payload.SeamPos,
		"capacity", payload.MaxSize-payload.StartPos,
		"wrap_count", payload.WrapCount,
	)
	return nil
}

// Priority defines the execution order.
func (l *WrapAlerterListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *WrapAlerterListener) IsAsync() bool { return true }
