// Package group runs operations concurrently against the children of a forked
// timeline node.
//
// All and Race fork the node, start one goroutine per operation and settle
// each child from its operation's result: a nil error resolves the child, any
// other error rejects it. The node then settles according to the timeline
// join policy. Once the node has settled the context handed to the remaining
// operations is cancelled. If the caller's context ends first, every child
// still pending is rejected with ctx.Err(). A child its op has forked is
// rejected through the pending leaves of its subtree.
package group

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/timeline"
)

// Op is one unit of work. node is the child timeline dedicated to it; the op
// may emit marks on it or fork it (for example with a nested All or Race) but
// must not resolve or reject it.
type Op func(ctx context.Context, node *timeline.Node) error

// PanicError wraps a panic raised by an Op. The child is rejected with it.
type PanicError struct {
	Index int    // Position of the op.
	Value any    // Value passed to panic.
	Stack []byte // Stack of the panicking goroutine.
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("group: op %d panicked: %v", e.Index, e.Value)
}

// All forks parent with All(len(ops)) and runs every op. It returns nil once
// every op succeeded, or the first error observed.
func All(ctx context.Context, parent *timeline.Node, ops ...Op) error {
	return run(ctx, parent, timeline.ModeAll, ops)
}

// Race forks parent with Race(len(ops)) and runs every op. It returns the
// result of the first op to finish.
func Race(ctx context.Context, parent *timeline.Node, ops ...Op) error {
	return run(ctx, parent, timeline.ModeRace, ops)
}

func run(ctx context.Context, parent *timeline.Node, mode timeline.Mode, ops []Op) error {
	var (
		children []*timeline.Node
		err      error
	)
	if mode == timeline.ModeRace {
		children, err = parent.Race(len(ops))
	} else {
		children, err = parent.All(len(ops))
	}
	if err != nil {
		return err
	}

	groupCtx, cancelGroup := context.WithCancel(ctx)
	defer cancelGroup()

	for i, op := range ops {
		go func(idx int, op Op, node *timeline.Node) {
			err := invoke(groupCtx, idx, op, node)
			if node.Settled() {
				return
			}
			if err != nil {
				rejectPending(node, err)
				return
			}
			_ = node.Resolve()
		}(i, op, children[i])
	}

	select {
	case <-parent.Done():
	case <-ctx.Done():
		// Children still running lose to the context. Settling them here
		// guarantees the parent settles; late results from their ops are
		// ignored by the node.
		for _, child := range children {
			rejectPending(child, ctx.Err())
		}
		<-parent.Done()
	}
	return settledErr(parent)
}

// rejectPending rejects n, or when n is forked, every unsettled leaf below it.
// The first leaf rejection propagates up through All and Race alike, so the
// remaining leaves usually find their ancestors settled already.
func rejectPending(n *timeline.Node, reason error) {
	if n.Settled() {
		return
	}
	if children := n.Children(); children != nil {
		for _, child := range children {
			rejectPending(child, reason)
		}
		return
	}
	if err := n.Reject(reason); errors.Is(err, timeline.ErrForkedCannotSettle) {
		// Forked between the Children check and Reject.
		rejectPending(n, reason)
	}
}

func invoke(ctx context.Context, idx int, op Op, node *timeline.Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Index: idx, Value: r, Stack: debug.Stack()}
		}
	}()
	return op(ctx, node)
}

// ErrRejected is returned when the parent rejected without a reason.
var ErrRejected = errors.New("group: timeline rejected")

func settledErr(parent *timeline.Node) error {
	outcome, reason := parent.Outcome()
	if outcome != observe.OutcomeRejected {
		return nil
	}
	if reason == nil {
		return ErrRejected
	}
	return reason
}
