package export

import (
	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/store"
)

// Replayer is satisfied by *store.Store.
type Replayer interface {
	Replay(fn func(rec store.Record) error) error
}

// Filter selects which entries are exported. A nil Filter keeps everything.
type Filter func(e *core.Entry) bool

// FromStore replays src in chronological order into w and returns the
// number of entries written. It does not close w.
func FromStore(src Replayer, w *Writer, keep Filter) (uint64, error) {
	var n uint64
	err := src.Replay(func(rec store.Record) error {
		if keep != nil && !keep(&rec.Entry) {
			return nil
		}
		if err := w.Write(&rec.Entry); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// FromIterator drains it into w, for read-only access through store.Reader.
func FromIterator(it *store.Iterator, w *Writer, keep Filter) (uint64, error) {
	var n uint64
	for it.Next() {
		rec := it.At()
		if keep != nil && !keep(&rec.Entry) {
			continue
		}
		if err := w.Write(&rec.Entry); err != nil {
			return n, err
		}
		n++
	}
	return n, it.Error()
}

// SeverityFilter keeps entries whose severity is in mask.
func SeverityFilter(mask core.LevelMask) Filter {
	return func(e *core.Entry) bool { return mask.Matches(e.Severity) }
}
