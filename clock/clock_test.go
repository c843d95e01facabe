package clock_test

import (
	"testing"
	"time"

	"github.com/aponysus/ilw/clock"
)

func TestSince_ManualClock(t *testing.T) {
	start := time.Unix(100, 0)
	c := clock.NewManual(start)
	c.Advance(250 * time.Millisecond)

	if got := clock.Since(c, start); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
}

func TestSince_ClampsNegative(t *testing.T) {
	start := time.Unix(100, 0)
	c := clock.NewManual(start)
	c.Set(start.Add(-time.Second))

	if got := clock.Since(c, start); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestSystem_MonotonicNonDecreasing(t *testing.T) {
	prev := clock.System.Now()
	for i := 0; i < 1000; i++ {
		now := clock.System.Now()
		if now.Sub(prev) < 0 {
			t.Fatalf("clock went backwards at iteration %d", i)
		}
		prev = now
	}
}

func TestSince_WallFallback(t *testing.T) {
	start := clock.Wall(time.Now())
	if got := clock.Since(clock.System, start); got < 0 {
		t.Fatalf("expected non-negative duration, got %v", got)
	}
}
