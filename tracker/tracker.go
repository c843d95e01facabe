// Package tracker provides an event tracker that holds events until it is
// started.
//
// Before Start, events are queued in emission order. The first Start call
// stores the start options, runs OnStart and then replays the queue. Later
// Start calls only replace the start options. Every delivered EventRecord
// carries the start options current at delivery time.
//
// An autostarted tracker does not queue. Until its first Start call it has no
// start options, and events tracked in that state are rejected with
// ErrNotStarted instead of being delivered.
package tracker

import (
	"errors"
	"sync"

	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/internal"
	"github.com/aponysus/ilw/observe"
)

// ErrNotStarted is returned by StartOptions before Start has been called, and
// by Track on an autostarted tracker whose start options are not set yet.
var ErrNotStarted = errors.New("tracker: start options are not initialized")

// Event is a tracked event as passed by the caller.
type Event struct {
	Name    string
	Message string
	Payload any // Delivered as EventRecord.Detail.
	Options any // Per-event options, delivered as EventRecord.Meta.
}

// Options configure a Tracker.
type Options struct {
	// Autostart delivers events immediately instead of queueing them. Start
	// must still be called before the first event to set start options.
	Autostart bool

	// OnEvent receives each delivered event. Observer, when set, receives
	// it as well.
	OnEvent  func(observe.EventRecord)
	Observer observe.Observer

	// OnStart runs on the first Start call of a tracker that was not
	// autostarted, before queued events are replayed. If it panics, the
	// tracker stays unstarted and the next Start runs it again.
	OnStart func(startOptions any, t *Tracker)

	Flags observe.Flags
	Clock clock.Clock
}

// Tracker is safe for concurrent use.
type Tracker struct {
	onEvent  func(observe.EventRecord)
	observer observe.Observer
	onStart  func(any, *Tracker)
	flags    observe.Flags
	clock    clock.Clock

	mu           sync.Mutex
	started      bool
	starting     bool
	optionsSet   bool
	startOptions any
	queue        []observe.EventRecord
}

// New builds a Tracker.
func New(opts Options) *Tracker {
	t := &Tracker{
		onEvent:  opts.OnEvent,
		observer: opts.Observer,
		onStart:  opts.OnStart,
		flags:    opts.Flags,
		clock:    opts.Clock,
		started:  opts.Autostart,
	}
	if t.observer == nil || internal.IsTypedNil(t.observer) {
		t.observer = observe.NoopObserver{}
	}
	if t.clock == nil {
		t.clock = clock.System
	}
	return t
}

func (t *Tracker) Debug(name, message string, payload any) error {
	return t.Track(observe.LevelDebug, Event{Name: name, Message: message, Payload: payload})
}

func (t *Tracker) Info(name, message string, payload any) error {
	return t.Track(observe.LevelInfo, Event{Name: name, Message: message, Payload: payload})
}

func (t *Tracker) Warn(name, message string, payload any) error {
	return t.Track(observe.LevelWarn, Event{Name: name, Message: message, Payload: payload})
}

func (t *Tracker) Error(name, message string, payload any) error {
	return t.Track(observe.LevelError, Event{Name: name, Message: message, Payload: payload})
}

// Track delivers ev, or queues it when the tracker has not started. It returns
// ErrNotStarted, dropping ev, on an autostarted tracker that has never been
// given start options.
func (t *Tracker) Track(level observe.Level, ev Event) error {
	rec := observe.EventRecord{
		Level:   level,
		Name:    ev.Name,
		Message: ev.Message,
		Detail:  ev.Payload,
		Time:    clock.Wall(t.clock.Now()),
		Flags:   t.flags,
		Meta:    ev.Options,
	}

	t.mu.Lock()
	if !t.started {
		t.queue = append(t.queue, rec)
		t.mu.Unlock()
		return nil
	}
	if !t.optionsSet {
		t.mu.Unlock()
		return ErrNotStarted
	}
	rec.StartOptions = t.startOptions
	t.mu.Unlock()

	t.deliver(rec)
	return nil
}

// Start sets the start options. On the first call of a tracker that has not
// started, it runs OnStart and then replays queued events in order.
func (t *Tracker) Start(startOptions any) {
	t.mu.Lock()
	t.startOptions = startOptions
	t.optionsSet = true
	if t.started || t.starting {
		t.mu.Unlock()
		return
	}
	t.starting = true
	t.mu.Unlock()

	// pending holds the dequeued events not yet handed to a sink. If OnStart or
	// a sink panics they go back to the head of the queue so a later Start can
	// deliver them.
	var pending []observe.EventRecord
	finished := false
	defer func() {
		if finished {
			return
		}
		t.mu.Lock()
		t.queue = append(pending, t.queue...)
		t.starting = false
		t.mu.Unlock()
	}()

	if t.onStart != nil {
		t.onStart(startOptions, t)
	}

	// Events tracked while replaying are appended to the queue and picked up
	// by the next round, so delivery order matches emission order.
	for {
		t.mu.Lock()
		pending = t.queue
		t.queue = nil
		if len(pending) == 0 {
			t.started = true
			t.starting = false
			t.mu.Unlock()
			finished = true
			return
		}
		current := t.startOptions
		t.mu.Unlock()

		for len(pending) > 0 {
			rec := pending[0]
			pending = pending[1:]
			rec.StartOptions = current
			t.deliver(rec)
		}
	}
}

// Started reports whether events are delivered immediately.
func (t *Tracker) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// StartOptions returns the options of the latest Start call.
func (t *Tracker) StartOptions() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.optionsSet {
		return nil, ErrNotStarted
	}
	return t.startOptions, nil
}

// Pending returns the number of queued events.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Tracker) deliver(rec observe.EventRecord) {
	if t.onEvent != nil {
		t.onEvent(rec)
	}
	t.observer.OnEvent(rec)
}
