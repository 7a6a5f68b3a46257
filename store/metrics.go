package store

import (
	"expvar"
	"sync"
)

// Metrics are the expvar counters a Store updates. Any field may be nil.
type Metrics struct {
	BytesWritten   *expvar.Int
	EntriesWritten *expvar.Int
	Wraps          *expvar.Int
	Rejected       *expvar.Int
	Syncs          *expvar.Int
}

// NewMetrics returns unpublished counters, suitable for tests and for
// stores that report through Stats only.
func NewMetrics() *Metrics {
	return &Metrics{
		BytesWritten:   new(expvar.Int),
		EntriesWritten: new(expvar.Int),
		Wraps:          new(expvar.Int),
		Rejected:       new(expvar.Int),
		Syncs:          new(expvar.Int),
	}
}

var (
	publishMu sync.Mutex
	published = map[string]*Metrics{}
)

// PublishMetrics registers counters under prefix (e.g. "loged_") with expvar.
// Calling it again with the same prefix returns the already published set.
func PublishMetrics(prefix string) *Metrics {
	publishMu.Lock()
	defer publishMu.Unlock()
	if m, ok := published[prefix]; ok {
		return m
	}
	m := &Metrics{
		BytesWritten:   expvar.NewInt(prefix + "bytes_written_total"),
		EntriesWritten: expvar.NewInt(prefix + "entries_written_total"),
		Wraps:          expvar.NewInt(prefix + "wraps_total"),
		Rejected:       expvar.NewInt(prefix + "rejected_total"),
		Syncs:          expvar.NewInt(prefix + "syncs_total"),
	}
	published[prefix] = m
	return m
}

func add(v *expvar.Int, delta int64) {
	if v != nil {
		v.Add(delta)
	}
}
