// Package clock supplies the time source timelines measure durations against.
//
// System readings carry Go's monotonic clock, so Since is immune to wall-clock
// steps. A reading without a monotonic component (for example one that went
// through Round(0) or was decoded from storage) falls back to wall-clock
// arithmetic; since both samples of a duration come from the same source the
// result stays relative, only precision is lost.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. Implementations must not block.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// System is the process clock.
var System Clock = Func(time.Now)

// Since returns now-start measured on c, clamped to zero.
func Since(c Clock, start time.Time) time.Duration {
	d := c.Now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// Wall strips the monotonic reading so the value is safe to persist or compare
// across processes.
func Wall(t time.Time) time.Time {
	return t.Round(0)
}

// Manual is a clock that only moves when told to. It is safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed so tests can exercise
// the non-negative duration clamp.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
