package hooks

import (
	"time"

	"github.com/INLOpen/loged/core"
)

// EventType names a point in the store lifecycle that listeners can observe.
type EventType string

const (
	EventPreAppend      EventType = "PreAppend"
	EventPostAppend     EventType = "PostAppend"
	EventOnWrap         EventType = "OnWrap"
	EventOnPolicyReject EventType = "OnPolicyReject"

	EventPostSync       EventType = "PostSync"
	EventPostSaveHeader EventType = "PostSaveHeader"

	EventPreClose  EventType = "PreClose"
	EventPostClose EventType = "PostClose"
)

// Cancellable reports whether a listener error aborts the operation that
// raised the event. Only Pre events can, and their listeners always run
// on the caller's goroutine.
func (t EventType) Cancellable() bool {
	return t == EventPreAppend || t == EventPreClose
}

// HookEvent is what listeners receive. Payload holds one of the *Payload
// structs below, by value.
type HookEvent interface {
	Type() EventType
	Payload() any
}

type event[P any] struct {
	kind    EventType
	payload P
}

func (e event[P]) Type() EventType { return e.kind }
func (e event[P]) Payload() any    { return e.payload }

// PreAppendPayload is sent after the entry passed the level policy and
// before it is encoded. Entry is the caller's value and must be treated as
// read-only.
type PreAppendPayload struct {
	Path  string
	Entry *core.Entry
}

func NewPreAppendEvent(p PreAppendPayload) HookEvent {
	return event[PreAppendPayload]{EventPreAppend, p}
}

// PostAppendPayload describes a record that was written. Offset is where
// the record starts; RecordSize includes framing.
type PostAppendPayload struct {
	Path       string
	Severity   core.Severity
	IsAudit    bool
	Offset     uint64
	RecordSize int
	Wrapped    bool
}

func NewPostAppendEvent(p PostAppendPayload) HookEvent {
	return event[PostAppendPayload]{EventPostAppend, p}
}

// WrapPayload is sent when an append rewinds the cursor to StartPos.
// Records from there up to the new cursor are about to be overwritten.
// WrapCount counts wraps performed by this store instance.
type WrapPayload struct {
	Path      string
	SeamPos   uint64
	StartPos  uint64
	MaxSize   uint64
	WrapCount int64
}

func NewWrapEvent(p WrapPayload) HookEvent {
	return event[WrapPayload]{EventOnWrap, p}
}

// PolicyRejectPayload is sent when the header policy refuses an entry.
type PolicyRejectPayload struct {
	Path     string
	Severity core.Severity
	IsAudit  bool
	Reason   string
}

func NewPolicyRejectEvent(p PolicyRejectPayload) HookEvent {
	return event[PolicyRejectPayload]{EventOnPolicyReject, p}
}

// SyncPayload follows a flush of the mapping, successful or not.
type SyncPayload struct {
	Path     string
	Duration time.Duration
	Error    error
}

func NewPostSyncEvent(p SyncPayload) HookEvent {
	return event[SyncPayload]{EventPostSync, p}
}

// SaveHeaderPayload carries the header just copied into the mapping.
type SaveHeaderPayload struct {
	Path   string
	Header core.Header
}

func NewPostSaveHeaderEvent(p SaveHeaderPayload) HookEvent {
	return event[SaveHeaderPayload]{EventPostSaveHeader, p}
}

// ClosePayload is shared by PreClose and PostClose. Error is only set on
// PostClose.
type ClosePayload struct {
	Path   string
	Header core.Header
	Error  error
}

func NewPreCloseEvent(p ClosePayload) HookEvent {
	return event[ClosePayload]{EventPreClose, p}
}

func NewPostCloseEvent(p ClosePayload) HookEvent {
	return event[ClosePayload]{EventPostClose, p}
}
