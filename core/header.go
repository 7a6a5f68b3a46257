package core

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Header is the self-description persisted at offset 0 of every store file.
type Header struct {
	// LevelMask selects which severities the store accepts.
	LevelMask LevelMask
	// AuditOnly restricts the store to entries flagged as audit.
	AuditOnly bool
	// StartPos is where the entry region begins (the header region size).
	StartPos uint64
	// CurPos is the next free write position.
	CurPos uint64
	// MaxSize is the total capacity of the file.
	MaxSize uint64
	// SeamPos is where the cursor last wrapped back to StartPos; 0 if the
	// store never wrapped.
	SeamPos    uint64
	Version    int16
	HelperText string
}

var (
	_ msgpack.CustomEncoder = (*Header)(nil)
	_ msgpack.CustomDecoder = (*Header)(nil)
)

// DefaultHeader returns the header of a new, empty store.
func DefaultHeader() Header {
	return Header{
		LevelMask:  DefaultLevelMask,
		AuditOnly:  false,
		StartPos:   DefaultStartPos,
		CurPos:     DefaultStartPos,
		MaxSize:    DefaultMaxSize,
		SeamPos:    0,
		Version:    FormatVersion,
		HelperText: HelperText,
	}
}

// Capacity returns the size of the entry region.
func (h Header) Capacity() uint64 {
	if h.MaxSize < h.StartPos {
		return 0
	}
	return h.MaxSize - h.StartPos
}

// Wrapped reports whether the cursor has ever wrapped around.
func (h Header) Wrapped() bool {
	return h.SeamPos != 0
}

// Validate checks the positional invariants of the header.
func (h Header) Validate() error {
	if h.StartPos == 0 {
		return errors.New("start_pos must be greater than zero")
	}
	if h.MaxSize <= h.StartPos {
		return fmt.Errorf("max_size %d must be greater than start_pos %d", h.MaxSize, h.StartPos)
	}
	if h.CurPos < h.StartPos || h.CurPos > h.MaxSize {
		return fmt.Errorf("cur_pos %d outside [%d, %d]", h.CurPos, h.StartPos, h.MaxSize)
	}
	if h.SeamPos != 0 && (h.SeamPos < h.StartPos || h.SeamPos > h.MaxSize) {
		return fmt.Errorf("seam_pos %d outside [%d, %d]", h.SeamPos, h.StartPos, h.MaxSize)
	}
	return nil
}

// Accepts applies the audit-only and level-mask policy to an entry. It
// returns nil or a *PolicyError.
func (h Header) Accepts(e *Entry) error {
	if h.AuditOnly && !e.IsAudit {
		return &PolicyError{Reason: "store accepts audit entries only", Severity: e.Severity, IsAudit: e.IsAudit}
	}
	if !h.LevelMask.Matches(e.Severity) {
		return &PolicyError{
			Reason:   fmt.Sprintf("severity %s not in level mask %s", e.Severity, h.LevelMask),
			Severity: e.Severity,
			IsAudit:  e.IsAudit,
		}
	}
	return nil
}

// Encode serializes the header as a msgpack array.
func (h Header) Encode() ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, &EncodeError{Target: "header", Err: err}
	}
	b, err := msgpack.Marshal(&h)
	if err != nil {
		return nil, &EncodeError{Target: "header", Err: err}
	}
	return b, nil
}

// DecodeHeader parses a header from the front of b. Trailing bytes (the
// padding of the header region) are ignored.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&h); err != nil {
		return Header{}, &DecodeError{Target: "header", Err: err}
	}
	if h.Version != FormatVersion {
		return Header{}, &DecodeError{
			Target: "header",
			Err:    fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, FormatVersion),
		}
	}
	if err := h.Validate(); err != nil {
		return Header{}, &DecodeError{Target: "header", Err: err}
	}
	return h, nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (h *Header) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(headerFieldCount); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(h.LevelMask)); err != nil {
		return err
	}
	if err := enc.EncodeBool(h.AuditOnly); err != nil {
		return err
	}
	for _, pos := range [...]uint64{h.StartPos, h.CurPos, h.MaxSize, h.SeamPos} {
		if err := enc.EncodeUint(pos); err != nil {
			return err
		}
	}
	if err := enc.EncodeInt(int64(h.Version)); err != nil {
		return err
	}
	return enc.EncodeString(h.HelperText)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (h *Header) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != headerFieldCount {
		return fmt.Errorf("header has %d fields, want %d", n, headerFieldCount)
	}
	mask, err := dec.DecodeUint8()
	if err != nil {
		return fmt.Errorf("level_mask: %w", err)
	}
	h.LevelMask = LevelMask(mask)
	if h.AuditOnly, err = dec.DecodeBool(); err != nil {
		return fmt.Errorf("audit_only: %w", err)
	}
	if h.StartPos, err = dec.DecodeUint64(); err != nil {
		return fmt.Errorf("start_pos: %w", err)
	}
	if h.CurPos, err = dec.DecodeUint64(); err != nil {
		return fmt.Errorf("cur_pos: %w", err)
	}
	if h.MaxSize, err = dec.DecodeUint64(); err != nil {
		return fmt.Errorf("max_size: %w", err)
	}
	if h.SeamPos, err = dec.DecodeUint64(); err != nil {
		return fmt.Errorf("seam_pos: %w", err)
	}
	if h.Version, err = dec.DecodeInt16(); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if h.HelperText, err = dec.DecodeString(); err != nil {
		return fmt.Errorf("helper_text: %w", err)
	}
	return nil
}
