package timeline

import (
	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/internal"
	"github.com/aponysus/ilw/observe"
	"github.com/rs/zerolog"
)

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the sink marks and settlements are delivered to.
// A nil observer discards them.
func WithObserver(o observe.Observer) Option {
	return func(e *Engine) {
		if internal.IsTypedNil(o) {
			o = observe.NoopObserver{}
		}
		e.observer = o
	}
}

// WithClock overrides the time source. Mostly useful in tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger usage errors are reported to.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithHistory enables per-node mark history. Every MarkRecord then carries
// the marks emitted before it on the same node, and SettleRecord carries the
// full history.
func WithHistory(enabled bool) Option {
	return func(e *Engine) {
		e.history = enabled
	}
}

// WithReadyZero controls whether marks emitted from OnReady report a zero
// duration. Enabled by default.
func WithReadyZero(enabled bool) Option {
	return func(e *Engine) {
		e.readyZero = enabled
	}
}

// WithFlags sets the routing flags stamped on every record.
func WithFlags(f observe.Flags) Option {
	return func(e *Engine) {
		e.flags = f
	}
}

// WithMeta sets the metadata stamped on every record.
func WithMeta(meta any) Option {
	return func(e *Engine) {
		e.meta = meta
	}
}

// WithIDGenerator overrides how root timeline IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// MarkOption decorates a single mark.
type MarkOption func(*markOptions)

type markOptions struct {
	message string
	payload any
}

// WithMessage attaches human readable text to a mark.
func WithMessage(msg string) MarkOption {
	return func(m *markOptions) { m.message = msg }
}

// WithPayload attaches arbitrary data to a mark.
func WithPayload(v any) MarkOption {
	return func(m *markOptions) { m.payload = v }
}
