package store

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/INLOpen/loged/core"
)

// DefaultCheckpointInterval is used when a Checkpointer is given a
// non-positive interval.
const DefaultCheckpointInterval = time.Second

// Checkpointer periodically saves the header and syncs a store from a
// background goroutine, for writers in SyncManual mode that still want a
// bounded window of unflushed entries.
type Checkpointer struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewCheckpointer returns a stopped Checkpointer for s.
func NewCheckpointer(s *Store, interval time.Duration) *Checkpointer {
	logger := s.logger.With("component", "Checkpointer")
	if interval <= 0 {
		logger.Warn("Invalid checkpoint interval, using default.", "interval", interval, "default", DefaultCheckpointInterval)
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{
		store:    s,
		interval: interval,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Start launches the background loop.
func (c *Checkpointer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.store.Checkpoint(); err != nil {
					if errors.Is(err, core.ErrClosed) {
						c.logger.Debug("Store closed, stopping checkpoint loop.")
						return
					}
					c.logger.Error("Periodic checkpoint failed", "error", err)
				}
			case <-c.shutdown:
				return
			}
		}
	}()
	c.logger.Info("Started background checkpoint loop.", "interval", c.interval)
}

// Stop ends the loop and waits for it. It does not checkpoint; Close does.
func (c *Checkpointer) Stop() {
	c.stopOnce.Do(func() { close(c.shutdown) })
	c.wg.Wait()
}
