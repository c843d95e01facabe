// Package zerologobs renders ilw records through a zerolog.Logger.
package zerologobs

import (
	"io"
	"os"
	"time"

	"github.com/aponysus/ilw/observe"
	"github.com/rs/zerolog"
)

// Observer writes every record to a zerolog logger.
type Observer struct {
	logger zerolog.Logger
}

var _ observe.Observer = (*Observer)(nil)

// New wraps an existing logger.
func New(logger zerolog.Logger) *Observer {
	return &Observer{logger: logger}
}

// NewConsole returns an Observer writing human readable lines to out
// (stderr when nil).
func NewConsole(out io.Writer, noColor bool) *Observer {
	if out == nil {
		out = os.Stderr
	}
	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
		FormatLevel: func(i any) string {
			if s, ok := i.(string); ok {
				return Label(s)
			}
			return "?????"
		},
	}
	return New(zerolog.New(writer).With().Timestamp().Logger())
}

// Label returns the fixed width console label for a level name.
func Label(level string) string {
	switch level {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO "
	case "warn":
		return "WARN "
	case "error":
		return "ERROR"
	default:
		return level
	}
}

func zlevel(l observe.Level) zerolog.Level {
	switch l {
	case observe.LevelDebug:
		return zerolog.DebugLevel
	case observe.LevelInfo:
		return zerolog.InfoLevel
	case observe.LevelWarn:
		return zerolog.WarnLevel
	case observe.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}

func withFlags(ev *zerolog.Event, f observe.Flags, meta any) *zerolog.Event {
	if f.Report {
		ev = ev.Bool("report", true)
	}
	if f.Persist {
		ev = ev.Bool("persist", true)
	}
	if meta != nil {
		ev = ev.Interface("meta", meta)
	}
	return ev
}

func (o *Observer) OnLog(rec observe.LogRecord) {
	ev := withFlags(o.logger.WithLevel(zlevel(rec.Level)), rec.Flags, rec.Meta)
	switch len(rec.Messages) {
	case 0:
		ev.Send()
	case 1:
		if s, ok := rec.Messages[0].(string); ok {
			ev.Msg(s)
			return
		}
		ev.Interface("data", rec.Messages[0]).Send()
	default:
		ev.Interface("data", rec.Messages).Send()
	}
}

func (o *Observer) OnEvent(rec observe.EventRecord) {
	ev := withFlags(o.logger.WithLevel(zlevel(rec.Level)), rec.Flags, rec.Meta).
		Str("event", rec.Name)
	if rec.Detail != nil {
		ev = ev.Interface("detail", rec.Detail)
	}
	ev.Msg(rec.Message)
}

func (o *Observer) OnMark(rec observe.MarkRecord) {
	ev := withFlags(o.logger.WithLevel(zlevel(rec.Level)), rec.Flags, rec.Meta).
		Str("timeline", rec.Timeline).
		Str("mark", rec.Name).
		Dur("duration", rec.Duration)
	if rec.Branch != "" {
		ev = ev.Str("branch", rec.Branch)
	}
	if rec.Payload != nil {
		ev = ev.Interface("payload", rec.Payload)
	}
	ev.Msg(rec.Message)
}

func (o *Observer) OnSettle(rec observe.SettleRecord) {
	lvl := zerolog.DebugLevel
	if rec.IsRoot() {
		lvl = zerolog.InfoLevel
	}
	ev := withFlags(o.logger.WithLevel(lvl), rec.Flags, rec.Meta).
		Str("timeline", rec.Timeline).
		Str("timeline_id", rec.TimelineID).
		Str("outcome", string(rec.Outcome)).
		Dur("duration", rec.Duration)
	if rec.Branch != "" {
		ev = ev.Str("branch", rec.Branch)
	}
	if rec.Reason != nil {
		ev = ev.AnErr("reason", rec.Reason)
	}
	ev.Msg("timeline settled")
}
