package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_AppendJSONFieldOrder(t *testing.T) {
	e := NewEntry()
	e.SenderID = "svc"
	e.Severity = SeverityWarning
	e.IsAudit = true
	e.Message = "disk almost full"
	e.SentAt = TimestampFromTime(time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC))
	e.ReceivedAt = TimestampFromTime(time.Date(2024, 3, 1, 12, 30, 46, 0, time.UTC))
	e.Extra.Set("zeta", Int(1)).Set("alpha", String("x"))

	b, err := e.AppendJSON(nil)
	require.NoError(t, err)
	assert.Equal(t,
		`{"sender_id":"svc","sent_at":"2024-03-01T12:30:45.123456789Z","received_at":"2024-03-01T12:30:46Z","severity":"warning","is_audit":true,"message":"disk almost full","extra":{"zeta":1,"alpha":"x"}}`,
		string(b))
}

func TestEntry_JSONRoundTrip(t *testing.T) {
	e := NewEntry()
	e.SenderID = SenderIDFromPublicKey([]byte("key"))
	e.Severity = SeverityTrace
	e.Message = "quote \" and newline \n"
	e.SentAt = Timestamp{Seconds: 1700000000, Nanos: 42}
	e.ReceivedAt = Timestamp{Seconds: -5, Nanos: 999999999}
	e.Extra.Set("n", Int(-3)).Set("list", Array(String("a"), Bool(false), Null())).Set("f", Float(2.5))

	b, err := e.AppendJSON([]byte("prefix"))
	require.NoError(t, err)
	got, err := ParseEntryJSON(b[len("prefix"):])
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestParseEntryJSON_DefaultsAndErrors(t *testing.T) {
	got, err := ParseEntryJSON([]byte(`{"message":"only"}`))
	require.NoError(t, err)
	want := NewEntry()
	want.Message = "only"
	assert.Equal(t, want, got)

	for name, in := range map[string]string{
		"not json":       `{`,
		"not object":     `[1]`,
		"bad severity":   `{"severity":"loud"}`,
		"bad timestamp":  `{"sent_at":"yesterday"}`,
		"extra is array": `{"extra":[1]}`,
		"audit string":   `{"is_audit":"yes"}`,
	} {
		_, err := ParseEntryJSON([]byte(in))
		assert.True(t, IsDecodeError(err), name)
	}
}

func TestEntry_AppendJSONRejectsInvalidSeverity(t *testing.T) {
	e := NewEntry()
	e.Severity = Severity(3)
	_, err := e.AppendJSON(nil)
	assert.True(t, IsEncodeError(err))
}
