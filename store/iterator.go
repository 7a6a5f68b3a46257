package store

import (
	"errors"

	"github.com/INLOpen/loged/core"
)

// Record is one decoded entry together with its location in the file.
type Record struct {
	Offset uint64
	Size   uint64
	Entry  core.Entry
}

// span is a byte range of the entry region scanned by the iterator.
type span struct {
	from, to uint64
	// resync skips bytes that do not start a valid record instead of
	// failing. Used for the region that may begin with a partly
	// overwritten record.
	resync bool
}

// Iterator walks the records of a mapped store from oldest to newest.
//
// Without a seam the records live in [StartPos, CurPos). After a wrap the
// surviving older records live in [CurPos, SeamPos) and come first; the
// record straddling CurPos was partly overwritten, so that region is scanned
// byte by byte until a frame passes its length and checksum checks.
type Iterator struct {
	data  []byte
	spans []span
	pos   uint64
	cur   Record
	err   error
	done  bool
}

// NewIterator returns an iterator over data (the full mapping) as described
// by h. The iterator does not copy data; the mapping must stay valid until
// the iterator is exhausted.
func NewIterator(data []byte, h core.Header) *Iterator {
	it := &Iterator{data: data}
	if h.Wrapped() && h.SeamPos > h.CurPos {
		it.spans = append(it.spans, span{from: h.CurPos, to: h.SeamPos, resync: true})
	}
	if h.CurPos > h.StartPos {
		it.spans = append(it.spans, span{from: h.StartPos, to: h.CurPos})
	}
	if len(it.spans) > 0 {
		it.pos = it.spans[0].from
	}
	return it
}

// Next advances to the next record. It returns false when the records are
// exhausted or an error occurred; check Error afterwards.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	for len(it.spans) > 0 {
		sp := it.spans[0]
		for it.pos < sp.to {
			payload, err := readRecord(it.data, it.pos, sp.to)
			if err == nil {
				var e core.Entry
				e, err = core.DecodeEntry(payload)
				if err == nil {
					size := recordSize(uint64(len(payload)))
					it.cur = Record{Offset: it.pos, Size: size, Entry: e}
					it.pos += size
					return true
				}
			}
			if !sp.resync {
				switch {
				case errors.Is(err, core.ErrCorruptRecord):
					err = &core.DecodeError{Target: "record", Err: err}
				case !core.IsDecodeError(err):
					err = &core.IOError{Op: "read record", Err: err}
				}
				return it.fail(err)
			}
			it.pos++
		}
		it.spans = it.spans[1:]
		if len(it.spans) > 0 {
			it.pos = it.spans[0].from
		}
	}
	it.done = true
	return false
}

func (it *Iterator) fail(err error) bool {
	it.err = err
	it.done = true
	return false
}

// At returns the current record. Only valid after Next returned true.
func (it *Iterator) At() Record {
	return it.cur
}

// Error returns the error that stopped iteration, if any.
func (it *Iterator) Error() error {
	return it.err
}

// Close releases the iterator. The underlying mapping is not touched.
func (it *Iterator) Close() error {
	it.done = true
	it.data = nil
	return nil
}
