package group_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aponysus/ilw/group"
	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/timeline"
)

func newRoot(t *testing.T, hooks timeline.Hooks) (*timeline.Node, *observe.Recorder) {
	t.Helper()
	rec := observe.NewRecorder()
	eng := timeline.NewEngine(timeline.WithObserver(rec))
	return eng.Create(t.Name(), hooks), rec
}

func TestAll_Success(t *testing.T) {
	var resolved atomic.Int32
	root, rec := newRoot(t, timeline.Hooks{
		OnResolve: func(*timeline.Node) { resolved.Add(1) },
	})

	op := func(ctx context.Context, node *timeline.Node) error {
		node.Info("work")
		return nil
	}
	if err := group.All(context.Background(), root, op, op, op); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Load() != 1 {
		t.Fatalf("expected root to resolve once, got %d", resolved.Load())
	}
	if got := len(rec.Marks()); got != 3 {
		t.Fatalf("expected 3 marks, got %d", got)
	}
}

func TestAll_FirstErrorCancelsOthers(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})
	errBoom := errors.New("boom")
	cancelled := make(chan struct{})

	err := group.All(context.Background(), root,
		func(context.Context, *timeline.Node) error { return errBoom },
		func(ctx context.Context, _ *timeline.Node) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected slow op to observe cancellation")
	}
	if outcome, _ := root.Outcome(); outcome != observe.OutcomeRejected {
		t.Fatalf("expected rejected root, got %q", outcome)
	}
}

func TestRace_FastestWins(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})
	slowDone := make(chan struct{})

	err := group.Race(context.Background(), root,
		func(ctx context.Context, _ *timeline.Node) error {
			defer close(slowDone)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return errors.New("slow op finished")
			}
		},
		func(context.Context, *timeline.Node) error { return nil },
	)
	if err != nil {
		t.Fatalf("expected fast op to win, got %v", err)
	}

	select {
	case <-slowDone:
	case <-time.After(time.Second):
		t.Fatal("expected slow op to be cancelled")
	}
	if outcome, _ := root.Outcome(); outcome != observe.OutcomeResolved {
		t.Fatalf("expected resolved root, got %q", outcome)
	}
}

func TestRace_FirstFailureWins(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})
	errFast := errors.New("fast failure")

	err := group.Race(context.Background(), root,
		func(context.Context, *timeline.Node) error { return errFast },
		func(ctx context.Context, _ *timeline.Node) error {
			<-ctx.Done()
			return nil
		},
	)
	if !errors.Is(err, errFast) {
		t.Fatalf("expected fast failure, got %v", err)
	}
}

func TestAll_ContextCancelRejectsPending(t *testing.T) {
	var rejectReason error
	root, _ := newRoot(t, timeline.Hooks{
		OnReject: func(_ *timeline.Node, reason error) { rejectReason = reason },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	block := func(context.Context, *timeline.Node) error {
		<-release
		return nil
	}

	err := group.All(ctx, root, block, block)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(rejectReason, context.DeadlineExceeded) {
		t.Fatalf("expected hook to see deadline exceeded, got %v", rejectReason)
	}
	for _, child := range root.Children() {
		if !child.Settled() {
			t.Fatal("expected every child to be settled")
		}
	}
}

func runWithin(t *testing.T, d time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatalf("group did not return within %v", d)
	}
	return nil
}

func TestAll_ContextEndRejectsForkedChild(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var forked atomic.Pointer[timeline.Node]
	op := func(ctx context.Context, node *timeline.Node) error {
		if _, err := node.All(2); err != nil {
			return err
		}
		forked.Store(node)
		<-ctx.Done()
		return ctx.Err()
	}

	err := runWithin(t, 2*time.Second, func() error {
		return group.All(ctx, root, op)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !root.Settled() {
		t.Fatal("expected root to be settled")
	}
	node := forked.Load()
	if node == nil || !node.Settled() {
		t.Fatal("expected forked child to be settled through its leaves")
	}
	if outcome, _ := node.Outcome(); outcome != observe.OutcomeRejected {
		t.Fatalf("expected forked child rejected, got %q", outcome)
	}
}

func TestAll_OpErrorOnForkedChildRejects(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})
	errBoom := errors.New("boom")
	op := func(_ context.Context, node *timeline.Node) error {
		if _, err := node.Race(2); err != nil {
			return err
		}
		return errBoom
	}

	err := runWithin(t, 2*time.Second, func() error {
		return group.All(context.Background(), root, op)
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestAll_PanicRejects(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})

	err := group.All(context.Background(), root,
		func(context.Context, *timeline.Node) error { return nil },
		func(context.Context, *timeline.Node) error { panic("kaboom") },
	)
	var pe *group.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %T: %v", err, err)
	}
	if pe.Index != 1 || pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("unexpected panic error: %+v", pe)
	}
}

func TestRun_ForkErrors(t *testing.T) {
	root, _ := newRoot(t, timeline.Hooks{})
	if err := group.All(context.Background(), root); !errors.Is(err, timeline.ErrInvalidFanout) {
		t.Fatalf("expected ErrInvalidFanout, got %v", err)
	}

	noop := func(context.Context, *timeline.Node) error { return nil }
	if err := group.All(context.Background(), root, noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := group.Race(context.Background(), root, noop); !errors.Is(err, timeline.ErrAlreadyForked) {
		t.Fatalf("expected ErrAlreadyForked, got %v", err)
	}
}

func TestNestedGroups(t *testing.T) {
	root, rec := newRoot(t, timeline.Hooks{})

	err := group.All(context.Background(), root,
		func(ctx context.Context, node *timeline.Node) error {
			return group.Race(ctx, node,
				func(context.Context, *timeline.Node) error { return nil },
				func(ctx context.Context, _ *timeline.Node) error { <-ctx.Done(); return ctx.Err() },
			)
		},
		func(context.Context, *timeline.Node) error { return nil },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rootSettles int
	for _, s := range rec.Settlements() {
		if s.IsRoot() {
			rootSettles++
		}
	}
	if rootSettles != 1 {
		t.Fatalf("expected one root settlement, got %d", rootSettles)
	}
}
