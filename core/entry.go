package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/sha3"
)

// renderTimeLayout prints a timestamp with nanosecond precision.
const renderTimeLayout = "2006-01-02 15:04:05.000000000"

// Separators used by Render between the header columns, the message and
// the extra payload.
const (
	messageGlyph = "▶"
	extraGlyph   = "◆"
)

// Timestamp is a Unix epoch split into whole seconds and a nanosecond
// remainder.
type Timestamp struct {
	Seconds int64
	Nanos   uint32
}

// TimestampFromTime converts t into a Timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: uint32(t.Nanosecond())}
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return TimestampFromTime(time.Now())
}

// Time returns the timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	if ts.Seconds != other.Seconds {
		return ts.Seconds < other.Seconds
	}
	return ts.Nanos < other.Nanos
}

// Entry is one logged event. The store only encodes entries; it never
// modifies them.
type Entry struct {
	// SenderID identifies the origin: a hash of its public key or a UUID.
	SenderID   string
	SentAt     Timestamp
	ReceivedAt Timestamp
	Severity   Severity
	IsAudit    bool
	Message    string
	// Extra holds structured context that does not fit the fixed fields.
	Extra *Map
}

var (
	_ msgpack.CustomEncoder = (*Entry)(nil)
	_ msgpack.CustomDecoder = (*Entry)(nil)
)

// NewEntry returns an entry with default values: the nil sender, zero
// timestamps, DefaultSeverity and an empty Extra map.
func NewEntry() Entry {
	return Entry{
		SenderID: NilSenderID,
		Severity: DefaultSeverity,
		Extra:    NewMap(),
	}
}

// SenderIDFromPublicKey derives a sender id as the hex SHA3-512 digest of a
// public key.
func SenderIDFromPublicKey(pub []byte) string {
	sum := sha3.Sum512(pub)
	return hex.EncodeToString(sum[:])
}

// NewSenderID returns a random UUID sender id.
func NewSenderID() string {
	return uuid.NewString()
}

// SentTime returns when the event occurred at its origin.
func (e *Entry) SentTime() time.Time { return e.SentAt.Time() }

// ReceivedTime returns when the entry was accepted.
func (e *Entry) ReceivedTime() time.Time { return e.ReceivedAt.Time() }

// ExtraJSON returns the Extra payload as compact JSON.
func (e *Entry) ExtraJSON() (string, error) {
	m := e.Extra
	if m == nil {
		m = NewMap()
	}
	b, err := m.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Render returns a colorized single-line representation for terminals.
// It is presentational only and never persisted.
func (e *Entry) Render() string {
	var sb strings.Builder
	sb.WriteString(e.Severity.ANSIColor())
	e.writeLine(&sb)
	sb.WriteString(ansiReset)
	return sb.String()
}

// RenderPlain is Render without color escapes.
func (e *Entry) RenderPlain() string {
	var sb strings.Builder
	e.writeLine(&sb)
	return sb.String()
}

func (e *Entry) writeLine(sb *strings.Builder) {
	extra, err := e.ExtraJSON()
	if err != nil {
		extra = err.Error()
	}
	fmt.Fprintf(sb, "%s %s %s %s %s %s %s",
		e.ReceivedTime().Format(renderTimeLayout),
		e.SenderID,
		e.Severity.Label(),
		messageGlyph,
		e.Message,
		extraGlyph,
		extra,
	)
}

func (e Entry) String() string {
	return e.Render()
}

// EncodeEntry serializes an entry as a msgpack array.
func EncodeEntry(e *Entry) ([]byte, error) {
	b, err := msgpack.Marshal(e)
	if err != nil {
		return nil, &EncodeError{Target: "entry", Err: err}
	}
	return b, nil
}

// DecodeEntry parses an entry produced by EncodeEntry.
func DecodeEntry(b []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Entry{}, &DecodeError{Target: "entry", Err: err}
	}
	return e, nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (e *Entry) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(entryFieldCount); err != nil {
		return err
	}
	if err := enc.EncodeString(e.SenderID); err != nil {
		return err
	}
	for _, ts := range [...]Timestamp{e.SentAt, e.ReceivedAt} {
		if err := enc.EncodeInt(ts.Seconds); err != nil {
			return err
		}
		if err := enc.EncodeUint(uint64(ts.Nanos)); err != nil {
			return err
		}
	}
	if err := enc.EncodeUint8(uint8(e.Severity)); err != nil {
		return err
	}
	if err := enc.EncodeBool(e.IsAudit); err != nil {
		return err
	}
	if err := enc.EncodeString(e.Message); err != nil {
		return err
	}
	extra := e.Extra
	if extra == nil {
		extra = NewMap()
	}
	return extra.EncodeMsgpack(enc)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (e *Entry) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != entryFieldCount {
		return fmt.Errorf("entry has %d fields, want %d", n, entryFieldCount)
	}
	if e.SenderID, err = dec.DecodeString(); err != nil {
		return fmt.Errorf("sender_id: %w", err)
	}
	for _, ts := range [...]*Timestamp{&e.SentAt, &e.ReceivedAt} {
		if ts.Seconds, err = dec.DecodeInt64(); err != nil {
			return fmt.Errorf("timestamp seconds: %w", err)
		}
		if ts.Nanos, err = dec.DecodeUint32(); err != nil {
			return fmt.Errorf("timestamp nanos: %w", err)
		}
	}
	sev, err := dec.DecodeUint8()
	if err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	e.Severity = Severity(sev)
	if e.IsAudit, err = dec.DecodeBool(); err != nil {
		return fmt.Errorf("is_audit: %w", err)
	}
	if e.Message, err = dec.DecodeString(); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	e.Extra = NewMap()
	if err := e.Extra.DecodeMsgpack(dec); err != nil {
		return fmt.Errorf("extra: %w", err)
	}
	return nil
}
