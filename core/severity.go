package core

import (
	"fmt"
	"strings"
)

// Severity is the level of a single log entry. Every severity is a distinct
// power of two so that any subset of severities fits in one LevelMask byte.
type Severity uint8

const (
	SeverityFatal   Severity = 1
	SeverityError   Severity = 2
	SeverityWarning Severity = 4
	SeverityNotice  Severity = 8
	SeverityInfo    Severity = 16
	SeverityDebug   Severity = 32
	SeverityTrace   Severity = 64
)

// DefaultSeverity is used when an entry does not specify a level.
const DefaultSeverity = SeverityDebug

// AllSeverities lists every severity from most to least severe.
var AllSeverities = []Severity{
	SeverityFatal,
	SeverityError,
	SeverityWarning,
	SeverityNotice,
	SeverityInfo,
	SeverityDebug,
	SeverityTrace,
}

// ANSI escape sequences used by Render.
const (
	ansiReset = "\x1b[0m"
)

// IsValid reports whether s is one of the seven defined severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityFatal, SeverityError, SeverityWarning, SeverityNotice,
		SeverityInfo, SeverityDebug, SeverityTrace:
		return true
	}
	return false
}

// String returns the upper-case name of the severity without padding.
func (s Severity) String() string {
	return strings.TrimRight(s.Label(), " ")
}

// Label returns the severity name padded to seven columns, as printed in
// rendered log lines.
func (s Severity) Label() string {
	switch s {
	case SeverityFatal:
		return "FATAL  "
	case SeverityError:
		return "ERROR  "
	case SeverityWarning:
		return "WARNING"
	case SeverityNotice:
		return "NOTICE "
	case SeverityInfo:
		return "INFO   "
	case SeverityDebug:
		return "DEBUG  "
	case SeverityTrace:
		return "TRACE  "
	default:
		return fmt.Sprintf("LVL(%d)", uint8(s))
	}
}

// ANSIColor returns the terminal color escape for the severity.
func (s Severity) ANSIColor() string {
	switch s {
	case SeverityFatal:
		return "\x1b[0;35m" // magenta
	case SeverityError:
		return "\x1b[0;31m" // red
	case SeverityWarning:
		return "\x1b[0;33m" // yellow
	case SeverityNotice:
		return "\x1b[0;32m" // green
	case SeverityInfo:
		return "\x1b[0;34m" // blue
	case SeverityDebug:
		return "\x1b[0;36m" // cyan
	default:
		return "\x1b[0;m"
	}
}

// ParseSeverity converts a case-insensitive level name into a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fatal":
		return SeverityFatal, nil
	case "error":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "notice":
		return SeverityNotice, nil
	case "info":
		return SeverityInfo, nil
	case "debug":
		return SeverityDebug, nil
	case "trace":
		return SeverityTrace, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// LevelMask is a set of severities packed into one byte.
type LevelMask uint8

// DefaultLevelMask accepts Fatal, Error, Warning and Notice entries.
var DefaultLevelMask = ToMask(SeverityFatal, SeverityError, SeverityWarning, SeverityNotice)

// AllLevels accepts every severity.
var AllLevels = ToMask(AllSeverities...)

// ToMask combines severities into a LevelMask. Duplicates set the same bit
// and an empty call yields 0.
func ToMask(levels ...Severity) LevelMask {
	var m LevelMask
	for _, l := range levels {
		m |= LevelMask(l)
	}
	return m
}

// Matches reports whether the bit of s is set in the mask.
func (m LevelMask) Matches(s Severity) bool {
	return s.IsValid() && uint8(m)&uint8(s) != 0
}

// Severities expands the mask back into its severities, most severe first.
func (m LevelMask) Severities() []Severity {
	var out []Severity
	for _, s := range AllSeverities {
		if m.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

func (m LevelMask) String() string {
	levels := m.Severities()
	if len(levels) == 0 {
		return "none"
	}
	names := make([]string, len(levels))
	for i, s := range levels {
		names[i] = strings.ToLower(s.String())
	}
	return strings.Join(names, "|")
}

// ParseLevelMask builds a mask from level names. The special name "all"
// selects every severity.
func ParseLevelMask(names []string) (LevelMask, error) {
	var m LevelMask
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), "all") {
			m |= AllLevels
			continue
		}
		s, err := ParseSeverity(n)
		if err != nil {
			return 0, err
		}
		m |= LevelMask(s)
	}
	return m, nil
}
