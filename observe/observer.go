// Package observe defines the records ilw emits and the Observer contract sinks
// implement to receive them.
//
// Observers are called synchronously on the emitting goroutine. A panic raised
// by an observer propagates to the caller of the method that produced the
// record; nothing is retried or buffered.
package observe

import "github.com/aponysus/ilw/internal"

// Observer receives every record produced by loggers, trackers and timelines.
// Implementations that may be driven from several goroutines must be safe for
// concurrent use.
type Observer interface {
	OnLog(rec LogRecord)
	OnEvent(rec EventRecord)
	OnMark(rec MarkRecord)
	OnSettle(rec SettleRecord)
}

// BaseObserver implements Observer with no-ops. Embed it to override a subset.
type BaseObserver struct{}

func (BaseObserver) OnLog(LogRecord)       {}
func (BaseObserver) OnEvent(EventRecord)   {}
func (BaseObserver) OnMark(MarkRecord)     {}
func (BaseObserver) OnSettle(SettleRecord) {}

// NoopObserver discards everything. It is usable as a zero value.
type NoopObserver struct{ BaseObserver }

var _ Observer = NoopObserver{}

// Funcs adapts individual callbacks to Observer. Nil fields are skipped.
type Funcs struct {
	Log    func(LogRecord)
	Event  func(EventRecord)
	Mark   func(MarkRecord)
	Settle func(SettleRecord)
}

func (f Funcs) OnLog(rec LogRecord) {
	if f.Log != nil {
		f.Log(rec)
	}
}

func (f Funcs) OnEvent(rec EventRecord) {
	if f.Event != nil {
		f.Event(rec)
	}
}

func (f Funcs) OnMark(rec MarkRecord) {
	if f.Mark != nil {
		f.Mark(rec)
	}
}

func (f Funcs) OnSettle(rec SettleRecord) {
	if f.Settle != nil {
		f.Settle(rec)
	}
}

// MultiObserver fans out to every non-nil observer in order.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnLog(rec LogRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnLog(rec)
		}
	}
}

func (m MultiObserver) OnEvent(rec EventRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnEvent(rec)
		}
	}
}

func (m MultiObserver) OnMark(rec MarkRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnMark(rec)
		}
	}
}

func (m MultiObserver) OnSettle(rec SettleRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSettle(rec)
		}
	}
}

// Combine returns a single observer for obs, dropping nil and typed-nil entries.
// It returns NoopObserver when nothing is left.
func Combine(obs ...Observer) Observer {
	kept := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if internal.IsTypedNil(o) {
			continue
		}
		kept = append(kept, o)
	}
	switch len(kept) {
	case 0:
		return NoopObserver{}
	case 1:
		return kept[0]
	default:
		return MultiObserver{Observers: kept}
	}
}

// LevelFilter forwards logs, events and marks at or above Min. Settlements are
// always forwarded.
type LevelFilter struct {
	Min  Level
	Next Observer
}

func (f LevelFilter) OnLog(rec LogRecord) {
	if f.Next != nil && rec.Level >= f.Min {
		f.Next.OnLog(rec)
	}
}

func (f LevelFilter) OnEvent(rec EventRecord) {
	if f.Next != nil && rec.Level >= f.Min {
		f.Next.OnEvent(rec)
	}
}

func (f LevelFilter) OnMark(rec MarkRecord) {
	if f.Next != nil && rec.Level >= f.Min {
		f.Next.OnMark(rec)
	}
}

func (f LevelFilter) OnSettle(rec SettleRecord) {
	if f.Next != nil {
		f.Next.OnSettle(rec)
	}
}
