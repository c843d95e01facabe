package timeline

import (
	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/observe"
)

// Mark records a timed observation on the node. Marks are legal in every
// state, including after settlement.
func (n *Node) Mark(level observe.Level, name string, opts ...MarkOption) {
	var mo markOptions
	for _, opt := range opts {
		opt(&mo)
	}

	now := n.eng.clock.Now()
	duration := clampDuration(now.Sub(n.start))
	if n.ready.Load() {
		duration = 0
	}

	rec := observe.MarkRecord{
		Level:      level,
		Name:       name,
		Payload:    mo.payload,
		Message:    mo.message,
		Duration:   duration,
		Time:       clock.Wall(now),
		Timeline:   n.name,
		TimelineID: n.id,
		Branch:     n.branch,
		Flags:      n.eng.flags,
		Meta:       n.eng.meta,
	}

	if n.eng.history {
		n.mu.Lock()
		if len(n.history) > 0 {
			rec.History = append([]observe.MarkRecord(nil), n.history...)
		}
		stored := rec
		stored.History = nil
		n.history = append(n.history, stored)
		n.mu.Unlock()
	}

	n.eng.observer.OnMark(rec)
}

func (n *Node) Debug(name string, opts ...MarkOption) { n.Mark(observe.LevelDebug, name, opts...) }
func (n *Node) Info(name string, opts ...MarkOption)  { n.Mark(observe.LevelInfo, name, opts...) }
func (n *Node) Warn(name string, opts ...MarkOption)  { n.Mark(observe.LevelWarn, name, opts...) }
func (n *Node) Error(name string, opts ...MarkOption) { n.Mark(observe.LevelError, name, opts...) }
