package core

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyRejected marks entries filtered out by the store's audit-only
	// or level-mask configuration. It is a normal outcome, not a failure.
	ErrPolicyRejected = errors.New("entry rejected by store policy")
	// ErrEntryTooLarge is returned when a single record cannot fit in the
	// entry region even after wrapping.
	ErrEntryTooLarge = errors.New("entry too large for store")
	// ErrVersionMismatch is wrapped by DecodeError when a header carries a
	// format version this build does not understand.
	ErrVersionMismatch = errors.New("unsupported format version")
	// ErrCapacityMismatch is returned when an existing store is opened with a
	// different capacity than the one recorded in its header.
	ErrCapacityMismatch = errors.New("store capacity mismatch")
	// ErrCorruptRecord is wrapped by DecodeError when a record frame fails its
	// bounds or checksum validation.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("store is closed")
	// ErrLocked is wrapped by IOError when another writer holds the store.
	ErrLocked = errors.New("store is locked by another writer")
)

// IOError reports a filesystem or mapping failure.
type IOError struct {
	Op   string // e.g. "open", "truncate", "mmap", "msync"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("io error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("io error during %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// EncodeError reports a value that could not be serialized.
type EncodeError struct {
	Target string // "header" or "entry"
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Target, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports bytes that do not parse as the expected schema.
type DecodeError struct {
	Target string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PolicyError describes why an entry was not accepted.
type PolicyError struct {
	Reason   string
	Severity Severity
	IsAudit  bool
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrPolicyRejected, e.Reason)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyRejected }

// TooLargeError carries the sizes involved in an ErrEntryTooLarge failure.
type TooLargeError struct {
	Size     uint64
	Capacity uint64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%v: record of %d bytes exceeds entry region of %d bytes", ErrEntryTooLarge, e.Size, e.Capacity)
}

func (e *TooLargeError) Unwrap() error { return ErrEntryTooLarge }

func IsIOError(err error) bool {
	var target *IOError
	return errors.As(err, &target)
}

func IsEncodeError(err error) bool {
	var target *EncodeError
	return errors.As(err, &target)
}

// IsDecodeError checks if an error (or any error in its chain) is a DecodeError.
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

func IsPolicyRejected(err error) bool {
	return errors.Is(err, ErrPolicyRejected)
}
