package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// JSON field names of an entry, in output order.
const (
	jsonSenderID   = "sender_id"
	jsonSentAt     = "sent_at"
	jsonReceivedAt = "received_at"
	jsonSeverity   = "severity"
	jsonIsAudit    = "is_audit"
	jsonMessage    = "message"
	jsonExtra      = "extra"
)

// AppendJSON appends e as one compact JSON object to dst. Timestamps are
// RFC 3339 in UTC with nanoseconds and the severity is its lower-case name.
func (e *Entry) AppendJSON(dst []byte) ([]byte, error) {
	var a fastjson.Arena
	obj := a.NewObject()
	obj.Set(jsonSenderID, a.NewString(e.SenderID))
	obj.Set(jsonSentAt, a.NewString(e.SentTime().Format(time.RFC3339Nano)))
	obj.Set(jsonReceivedAt, a.NewString(e.ReceivedTime().Format(time.RFC3339Nano)))
	if !e.Severity.IsValid() {
		return nil, &EncodeError{Target: "entry", Err: fmt.Errorf("invalid severity %d", uint8(e.Severity))}
	}
	obj.Set(jsonSeverity, a.NewString(lowerSeverity(e.Severity)))
	if e.IsAudit {
		obj.Set(jsonIsAudit, a.NewTrue())
	} else {
		obj.Set(jsonIsAudit, a.NewFalse())
	}
	obj.Set(jsonMessage, a.NewString(e.Message))
	extra := e.Extra
	if extra == nil {
		extra = NewMap()
	}
	jv, err := extra.toJSON(&a)
	if err != nil {
		return nil, &EncodeError{Target: "entry extra", Err: err}
	}
	obj.Set(jsonExtra, jv)
	return obj.MarshalTo(dst), nil
}

// ParseEntryJSON parses an object produced by AppendJSON. Missing fields
// keep the NewEntry defaults.
func ParseEntryJSON(data []byte) (Entry, error) {
	var p fastjson.Parser
	jv, err := p.ParseBytes(data)
	if err != nil {
		return Entry{}, &DecodeError{Target: "entry json", Err: err}
	}
	e, err := EntryFromJSON(jv)
	if err != nil {
		return Entry{}, &DecodeError{Target: "entry json", Err: err}
	}
	return e, nil
}

// EntryFromJSON converts a parsed JSON object into an Entry.
func EntryFromJSON(jv *fastjson.Value) (Entry, error) {
	obj, err := jv.Object()
	if err != nil {
		return Entry{}, err
	}
	e := NewEntry()
	if v := obj.Get(jsonSenderID); v != nil {
		b, err := v.StringBytes()
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", jsonSenderID, err)
		}
		e.SenderID = string(b)
	}
	for _, f := range [...]struct {
		name string
		dst  *Timestamp
	}{{jsonSentAt, &e.SentAt}, {jsonReceivedAt, &e.ReceivedAt}} {
		v := obj.Get(f.name)
		if v == nil {
			continue
		}
		b, err := v.StringBytes()
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", f.name, err)
		}
		t, err := time.Parse(time.RFC3339Nano, string(b))
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = TimestampFromTime(t)
	}
	if v := obj.Get(jsonSeverity); v != nil {
		b, err := v.StringBytes()
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", jsonSeverity, err)
		}
		if e.Severity, err = ParseSeverity(string(b)); err != nil {
			return Entry{}, err
		}
	}
	if v := obj.Get(jsonIsAudit); v != nil {
		if e.IsAudit, err = v.Bool(); err != nil {
			return Entry{}, fmt.Errorf("%s: %w", jsonIsAudit, err)
		}
	}
	if v := obj.Get(jsonMessage); v != nil {
		b, err := v.StringBytes()
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", jsonMessage, err)
		}
		e.Message = string(b)
	}
	if v := obj.Get(jsonExtra); v != nil && v.Type() != fastjson.TypeNull {
		if v.Type() != fastjson.TypeObject {
			return Entry{}, fmt.Errorf("%s: expected object, got %s", jsonExtra, v.Type())
		}
		extra, err := fromJSON(v)
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", jsonExtra, err)
		}
		e.Extra, _ = extra.AsMap()
	}
	return e, nil
}

func lowerSeverity(s Severity) string {
	return strings.ToLower(s.String())
}
