package timeline

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/observe"
)

// Mode is the join policy of a forked node.
type Mode int

const (
	ModeNone Mode = iota
	ModeAll
	ModeRace
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeAll:
		return "all"
	case ModeRace:
		return "race"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// handle reports a node's settlement to whoever owns it: the parent's join
// policy for children, the caller's hooks for a root.
type handle struct {
	resolve func()
	reject  func(reason error)
}

// Node is one timeline in a fork tree.
type Node struct {
	eng    *Engine
	name   string
	id     string
	branch string
	start  time.Time
	up     handle
	done   chan struct{}

	// ready is shared by the whole tree and set while the root's OnReady
	// hook runs, so nodes forked inside the hook share the zero window.
	ready *atomic.Bool

	mu       sync.Mutex
	forked   bool
	settled  bool
	mode     Mode
	children []*Node
	resolved int
	outcome  observe.Outcome
	reason   error
	history  []observe.MarkRecord
}

// Name returns the timeline name. Children share their root's name.
func (n *Node) Name() string { return n.name }

// ID returns the root timeline's identifier.
func (n *Node) ID() string { return n.id }

// Branch returns the node's dot path in the fork tree, "" for the root.
func (n *Node) Branch() string { return n.branch }

// Start returns the node's start time.
func (n *Node) Start() time.Time { return n.start }

// Elapsed returns the time since the node started.
func (n *Node) Elapsed() time.Duration { return clock.Since(n.eng.clock, n.start) }

func (n *Node) Forked() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.forked
}

func (n *Node) Settled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settled
}

// Mode returns the join policy requested, ModeNone when not forked.
func (n *Node) Mode() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// Outcome returns how the node settled and the rejection reason, if any.
// The outcome is empty while the node is pending.
func (n *Node) Outcome() (observe.Outcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outcome, n.reason
}

// Children returns the nodes created by All or Race, nil when not forked.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children == nil {
		return nil
	}
	return append([]*Node(nil), n.children...)
}

// Done returns a channel closed once the node has settled and its settlement
// has been delivered to observers and propagated upward.
func (n *Node) Done() <-chan struct{} { return n.done }

// History returns the marks emitted on this node, oldest first. It is empty
// unless the engine tracks history.
func (n *Node) History() []observe.MarkRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]observe.MarkRecord(nil), n.history...)
}

// All forks the node into count children and resolves it once every child has
// resolved. The first child to reject rejects the node; later settlements are
// ignored.
func (n *Node) All(count int) ([]*Node, error) {
	return n.fork(ModeAll, count)
}

// Race forks the node into count children. The first child to settle settles
// the node the same way; later settlements are ignored.
func (n *Node) Race(count int) ([]*Node, error) {
	return n.fork(ModeRace, count)
}

// Resolve settles an unforked node as resolved.
func (n *Node) Resolve() error {
	if err := n.settleDirect("resolve"); err != nil {
		return err
	}
	n.finish(observe.OutcomeResolved, nil)
	return nil
}

// Reject settles an unforked node as rejected. reason may be nil.
func (n *Node) Reject(reason error) error {
	if err := n.settleDirect("reject"); err != nil {
		return err
	}
	n.finish(observe.OutcomeRejected, reason)
	return nil
}

func (n *Node) fork(mode Mode, count int) ([]*Node, error) {
	op := mode.String()
	if count < 1 {
		return nil, n.misuse(op, ErrInvalidFanout, fmt.Sprintf("requested %d", count))
	}

	n.mu.Lock()
	if n.forked {
		detail := "node is already forked as " + n.mode.String()
		n.mu.Unlock()
		return nil, n.misuse(op, ErrAlreadyForked, detail)
	}
	if n.settled {
		detail := "node is already " + string(n.outcomeLocked())
		n.mu.Unlock()
		return nil, n.misuse(op, ErrAlreadySettled, detail)
	}
	n.forked = true
	n.mode = mode
	start := n.eng.clock.Now()
	children := make([]*Node, count)
	for i := range children {
		children[i] = n.newChild(i, start)
	}
	n.children = children
	n.mu.Unlock()

	return append([]*Node(nil), children...), nil
}

func (n *Node) newChild(idx int, start time.Time) *Node {
	branch := strconv.Itoa(idx)
	if n.branch != "" {
		branch = n.branch + "." + branch
	}
	return &Node{
		eng:    n.eng,
		name:   n.name,
		id:     n.id,
		branch: branch,
		start:  start,
		done:   make(chan struct{}),
		ready:  n.ready,
		up: handle{
			resolve: n.childResolved,
			reject:  n.childRejected,
		},
	}
}

func (n *Node) settleDirect(op string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.forked {
		return n.misuse(op, ErrForkedCannotSettle, "node is forked as "+n.mode.String())
	}
	if n.settled {
		return n.misuse(op, ErrAlreadySettled, "node is already "+string(n.outcomeLocked()))
	}
	n.settled = true
	return nil
}

func (n *Node) childResolved() {
	n.mu.Lock()
	if n.settled {
		n.mu.Unlock()
		return
	}
	n.resolved++
	if n.mode != ModeRace && n.resolved < len(n.children) {
		n.mu.Unlock()
		return
	}
	n.settled = true
	n.mu.Unlock()
	n.finish(observe.OutcomeResolved, nil)
}

func (n *Node) childRejected(reason error) {
	n.mu.Lock()
	if n.settled {
		n.mu.Unlock()
		return
	}
	n.settled = true
	n.mu.Unlock()
	n.finish(observe.OutcomeRejected, reason)
}

// finish runs exactly once per node, after settled was flipped under the lock.
func (n *Node) finish(outcome observe.Outcome, reason error) {
	defer close(n.done)
	now := n.eng.clock.Now()

	n.mu.Lock()
	n.outcome = outcome
	n.reason = reason
	var marks []observe.MarkRecord
	if n.eng.history {
		marks = append(marks, n.history...)
	}
	n.mu.Unlock()

	n.eng.observer.OnSettle(observe.SettleRecord{
		Timeline:   n.name,
		TimelineID: n.id,
		Branch:     n.branch,
		Outcome:    outcome,
		Reason:     reason,
		Start:      clock.Wall(n.start),
		End:        clock.Wall(now),
		Duration:   clampDuration(now.Sub(n.start)),
		Flags:      n.eng.flags,
		Meta:       n.eng.meta,
		Marks:      marks,
	})

	if outcome == observe.OutcomeResolved {
		n.up.resolve()
		return
	}
	n.up.reject(reason)
}

func (n *Node) outcomeLocked() observe.Outcome {
	if n.outcome == "" {
		return "settling"
	}
	return n.outcome
}

// misuse builds and logs a usage error. It does not touch n.mu.
func (n *Node) misuse(op string, err error, detail string) error {
	ue := &UsageError{Op: op, Timeline: n.name, Branch: n.branch, Detail: detail, Err: err}
	n.eng.logMisuse(ue)
	return ue
}

func (n *Node) runReady(fn func(*Node)) {
	if n.eng.readyZero {
		n.ready.Store(true)
		defer n.ready.Store(false)
	}
	fn(n)
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
