package observe

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a log line, event or mark.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	return l >= LevelDebug && l <= LevelError
}

// ParseLevel parses "debug", "info", "warn"/"warning" or "error".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}

// Flags route a record to optional sinks.
type Flags struct {
	Report  bool `json:"report"`  // Forward to the remote reporter.
	Persist bool `json:"persist"` // Write to durable storage.
}

// LogRecord is a plain, untyped log line.
type LogRecord struct {
	Level    Level     `json:"level"`
	Messages []any     `json:"messages"` // Arguments as passed by the caller.
	Time     time.Time `json:"time"`     // Wall-clock emission time.
	Flags    Flags     `json:"flags"`
	Meta     any       `json:"meta,omitempty"`
}

// EventRecord is a named, typed event.
type EventRecord struct {
	Level   Level     `json:"level"`
	Name    string    `json:"name"`              // Event type.
	Message string    `json:"message,omitempty"` // Optional human readable text.
	Detail  any       `json:"detail,omitempty"`  // Event payload.
	Time    time.Time `json:"time"`              // Wall-clock emission time.
	Flags   Flags     `json:"flags"`
	Meta    any       `json:"meta,omitempty"`

	// StartOptions holds the options passed to the tracker's Start call, if any.
	StartOptions any `json:"start_options,omitempty"`
}

// MarkRecord is a single timed observation on a timeline node.
type MarkRecord struct {
	Level      Level         `json:"level"`
	Name       string        `json:"name"`              // Mark name, e.g. "start" or "fetchDone".
	Payload    any           `json:"payload,omitempty"` // Caller supplied data.
	Message    string        `json:"message,omitempty"` // Optional human readable text.
	Duration   time.Duration `json:"duration"`          // Elapsed since the node started (never negative).
	Time       time.Time     `json:"time"`              // Wall-clock emission time.
	Timeline   string        `json:"timeline"`          // Timeline name.
	TimelineID string        `json:"timeline_id"`       // Root timeline identifier.
	Branch     string        `json:"branch,omitempty"`  // Dot path of the node inside the fork tree ("" for the root).
	Flags      Flags         `json:"flags"`
	Meta       any           `json:"meta,omitempty"`

	// History holds prior marks on the same node, oldest first. Only set when
	// the engine tracks history.
	History []MarkRecord `json:"history,omitempty"`
}

// Outcome is how a timeline node settled.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeRejected Outcome = "rejected"
)

// SettleRecord describes a node reaching its terminal state.
type SettleRecord struct {
	Timeline   string        `json:"timeline"`         // Timeline name.
	TimelineID string        `json:"timeline_id"`      // Root timeline identifier.
	Branch     string        `json:"branch,omitempty"` // "" for the root.
	Outcome    Outcome       `json:"outcome"`
	Reason     error         `json:"-"`                // Rejection reason (nil on resolve).
	Start      time.Time     `json:"start"`            // Node start (wall clock).
	End        time.Time     `json:"end"`              // Settlement time (wall clock).
	Duration   time.Duration `json:"duration"`         // Monotonic elapsed time.
	Flags      Flags         `json:"flags"`
	Meta       any           `json:"meta,omitempty"`

	Marks []MarkRecord `json:"marks,omitempty"` // Node history at settlement (when tracked).
}

// IsRoot reports whether the record belongs to a root timeline.
func (r SettleRecord) IsRoot() bool { return r.Branch == "" }

// ReasonString renders Reason for sinks that store text.
func (r SettleRecord) ReasonString() string {
	if r.Reason == nil {
		return ""
	}
	return r.Reason.Error()
}
