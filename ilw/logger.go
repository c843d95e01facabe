package ilw

import (
	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/internal"
	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/timeline"
	"github.com/aponysus/ilw/tracker"
)

// state is shared by value. Builders return a modified copy and never touch
// the receiver.
type state struct {
	observer observe.Observer
	engine   *timeline.Engine
	clock    clock.Clock
	flags    observe.Flags
	meta     any
}

// Logger is a plain logger. The zero value discards everything.
type Logger struct {
	st state
}

// EventLogger emits named events. Obtain one with Logger.Event.
type EventLogger struct {
	st state
}

// Option configures New.
type Option func(*settings)

type settings struct {
	observer   observe.Observer
	clock      clock.Clock
	flags      observe.Flags
	meta       any
	engineOpts []timeline.Option
}

// WithObserver routes every record to o.
func WithObserver(o observe.Observer) Option {
	return func(s *settings) {
		s.observer = o
	}
}

// WithClock sets the time source for log and event timestamps and for
// timelines.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithFlags sets the initial flags, as if Report or Persist had been called.
func WithFlags(f observe.Flags) Option {
	return func(s *settings) {
		s.flags = f
	}
}

// WithMeta sets the initial meta value.
func WithMeta(meta any) Option {
	return func(s *settings) {
		s.meta = meta
	}
}

// WithTimelineOptions passes extra options to the timeline engine. Observer,
// clock, flags and meta are always taken from the logger.
func WithTimelineOptions(opts ...timeline.Option) Option {
	return func(s *settings) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// New returns a plain logger.
func New(opts ...Option) Logger {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.observer == nil || internal.IsTypedNil(s.observer) {
		s.observer = observe.NoopObserver{}
	}
	if s.clock == nil {
		s.clock = clock.System
	}

	engineOpts := append([]timeline.Option{}, s.engineOpts...)
	engineOpts = append(engineOpts,
		timeline.WithObserver(s.observer),
		timeline.WithClock(s.clock),
	)
	return Logger{st: state{
		observer: s.observer,
		engine:   timeline.NewEngine(engineOpts...),
		clock:    s.clock,
		flags:    s.flags,
		meta:     s.meta,
	}}
}

func (s state) resolved() state {
	if s.observer == nil {
		s.observer = observe.NoopObserver{}
	}
	if s.clock == nil {
		s.clock = clock.System
	}
	return s
}

func (l Logger) Debug(args ...any) { l.Log(observe.LevelDebug, args...) }
func (l Logger) Info(args ...any)  { l.Log(observe.LevelInfo, args...) }
func (l Logger) Warn(args ...any)  { l.Log(observe.LevelWarn, args...) }
func (l Logger) Error(args ...any) { l.Log(observe.LevelError, args...) }

// Log emits a plain record at level with args as given.
func (l Logger) Log(level observe.Level, args ...any) {
	st := l.st.resolved()
	st.observer.OnLog(observe.LogRecord{
		Level:    level,
		Messages: args,
		Time:     clock.Wall(st.clock.Now()),
		Flags:    st.flags,
		Meta:     st.meta,
	})
}

// Report returns a copy whose records are flagged for the remote reporter.
func (l Logger) Report() Logger {
	l.st.flags.Report = true
	return l
}

// Persist returns a copy whose records are flagged for durable storage.
func (l Logger) Persist() Logger {
	l.st.flags.Persist = true
	return l
}

// Meta returns a copy carrying meta on every record.
func (l Logger) Meta(meta any) Logger {
	l.st.meta = meta
	return l
}

// Event returns an event-mode logger with the same state.
func (l Logger) Event() EventLogger {
	return EventLogger{st: l.st}
}

// Flags reports the current flags.
func (l Logger) Flags() observe.Flags { return l.st.flags }

// Timeline creates a root timeline whose marks and settlements carry the
// logger's flags and meta.
func (l Logger) Timeline(name string, hooks timeline.Hooks) *timeline.Node {
	return timelineFor(l.st, name, hooks)
}

// Tracker builds an event tracker that delivers to the logger's observer with
// the logger's flags. Fields already set in opts win.
func (l Logger) Tracker(opts tracker.Options) *tracker.Tracker {
	st := l.st.resolved()
	if opts.Observer == nil {
		opts.Observer = st.observer
	}
	if opts.Clock == nil {
		opts.Clock = st.clock
	}
	if opts.Flags == (observe.Flags{}) {
		opts.Flags = st.flags
	}
	return tracker.New(opts)
}

func (e EventLogger) Debug(name string, detail any) { e.Emit(observe.LevelDebug, name, detail) }
func (e EventLogger) Info(name string, detail any)  { e.Emit(observe.LevelInfo, name, detail) }
func (e EventLogger) Warn(name string, detail any)  { e.Emit(observe.LevelWarn, name, detail) }
func (e EventLogger) Error(name string, detail any) { e.Emit(observe.LevelError, name, detail) }

// Emit sends one named event.
func (e EventLogger) Emit(level observe.Level, name string, detail any) {
	st := e.st.resolved()
	st.observer.OnEvent(observe.EventRecord{
		Level:  level,
		Name:   name,
		Detail: detail,
		Time:   clock.Wall(st.clock.Now()),
		Flags:  st.flags,
		Meta:   st.meta,
	})
}

func (e EventLogger) Report() EventLogger {
	e.st.flags.Report = true
	return e
}

func (e EventLogger) Persist() EventLogger {
	e.st.flags.Persist = true
	return e
}

func (e EventLogger) Meta(meta any) EventLogger {
	e.st.meta = meta
	return e
}

// Flags reports the current flags.
func (e EventLogger) Flags() observe.Flags { return e.st.flags }

// Timeline is Logger.Timeline for event loggers.
func (e EventLogger) Timeline(name string, hooks timeline.Hooks) *timeline.Node {
	return timelineFor(e.st, name, hooks)
}

func timelineFor(st state, name string, hooks timeline.Hooks) *timeline.Node {
	eng := st.engine
	if eng == nil {
		st = st.resolved()
		eng = timeline.NewEngine(timeline.WithObserver(st.observer), timeline.WithClock(st.clock))
	}
	return eng.With(timeline.WithFlags(st.flags), timeline.WithMeta(st.meta)).Create(name, hooks)
}
