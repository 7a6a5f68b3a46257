// Package hooks lets callers observe and veto store operations.
package hooks

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// HookListener is implemented by anything registered with a HookManager.
//
// An error returned for a cancellable event aborts the operation; errors on
// other events are logged and dropped. Lower Priority values run first and
// equal priorities keep registration order. IsAsync moves a listener of a
// non-cancellable event onto its own goroutine.
type HookListener interface {
	OnEvent(ctx context.Context, event HookEvent) error
	Priority() int
	IsAsync() bool
}

type HookManager interface {
	Register(eventType EventType, listener HookListener)
	Trigger(ctx context.Context, event HookEvent) error
	// Stop blocks until every async listener started so far has returned.
	Stop()
}

// DefaultHookManager dispatches events to listeners in priority order.
// Register replaces the per-event slice instead of editing it, so Trigger
// can range over a snapshot without holding the lock.
type DefaultHookManager struct {
	mu       sync.RWMutex
	byType   map[EventType][]HookListener
	inflight sync.WaitGroup
	logger   *slog.Logger
}

func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		byType: make(map[EventType][]HookListener),
		logger: logger,
	}
}

func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := append(slices.Clone(m.byType[eventType]), listener)
	slices.SortStableFunc(next, func(a, b HookListener) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	m.byType[eventType] = next
}

func (m *DefaultHookManager) listenersFor(t EventType) []HookListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byType[t]
}

func (m *DefaultHookManager) Trigger(ctx context.Context, ev HookEvent) error {
	kind := ev.Type()
	cancellable := kind.Cancellable()

	for _, l := range m.listenersFor(kind) {
		if l.IsAsync() && !cancellable {
			m.inflight.Add(1)
			go func(l HookListener) {
				defer m.inflight.Done()
				if err := l.OnEvent(ctx, ev); err != nil {
					m.logger.Error("Async listener failed.", "event", kind, "priority", l.Priority(), "error", err)
				}
			}(l)
			continue
		}

		err := l.OnEvent(ctx, ev)
		if err == nil {
			continue
		}
		if cancellable {
			return fmt.Errorf("%s listener (priority %d) refused: %w", kind, l.Priority(), err)
		}
		m.logger.Error("Listener failed.", "event", kind, "priority", l.Priority(), "error", err)
	}
	return nil
}

func (m *DefaultHookManager) Stop() {
	m.inflight.Wait()
}
