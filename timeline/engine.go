// Package timeline tracks in-flight operations as trees of timing nodes.
//
// A root Node is created per logical operation with Engine.Create. Marks
// record the time elapsed since the node started. A node either settles
// directly (Resolve/Reject) or forks into children with All or Race, in which
// case it settles once its children satisfy the join policy:
//
//	root := eng.Create("fetch", timeline.Hooks{OnReject: report})
//	parts, _ := root.All(2)
//	go func() { parts[0].Info("users"); parts[0].Resolve() }()
//	go func() { parts[1].Reject(err) }()
//
// Every node settles at most once. Nodes are safe for concurrent use; hooks and
// observers run on the goroutine whose call settled the node, with no engine
// lock held.
package timeline

import (
	"sync/atomic"

	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/observe"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Hooks are the caller's settlement listeners for a root timeline. Each is optional.
type Hooks struct {
	// OnReady runs synchronously inside Create, before it returns.
	OnReady func(root *Node)
	// OnResolve runs once when the root resolves.
	OnResolve func(root *Node)
	// OnReject runs once when the root rejects.
	OnReject func(root *Node, reason error)
}

// Engine creates root timelines. An Engine is immutable after construction and
// safe for concurrent use.
type Engine struct {
	observer  observe.Observer
	clock     clock.Clock
	logger    zerolog.Logger
	history   bool
	readyZero bool
	flags     observe.Flags
	meta      any
	newID     func() string
}

// NewEngine returns an Engine configured by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		observer:  observe.NoopObserver{},
		clock:     clock.System,
		logger:    zerolog.Nop(),
		readyZero: true,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of e with opts applied on top. e is unchanged.
func (e *Engine) With(opts ...Option) *Engine {
	next := *e
	for _, opt := range opts {
		opt(&next)
	}
	return &next
}

// Create starts a root timeline named name. The start time is captured before
// hooks.OnReady runs, so marks emitted from OnReady belong to the timeline.
func (e *Engine) Create(name string, hooks Hooks) *Node {
	root := &Node{
		eng:   e,
		name:  name,
		id:    e.newID(),
		start: e.clock.Now(),
		done:  make(chan struct{}),
		ready: new(atomic.Bool),
	}
	root.up = handle{
		resolve: func() {
			if hooks.OnResolve != nil {
				hooks.OnResolve(root)
			}
		},
		reject: func(reason error) {
			if hooks.OnReject != nil {
				hooks.OnReject(root, reason)
			}
		},
	}

	e.logger.Debug().
		Str("timeline", name).
		Str("timeline_id", root.id).
		Msg("timeline created")

	if hooks.OnReady != nil {
		root.runReady(hooks.OnReady)
	}
	return root
}

func (e *Engine) logMisuse(err *UsageError) {
	e.logger.Warn().
		Err(err.Err).
		Str("timeline", err.Timeline).
		Str("branch", err.Branch).
		Str("op", err.Op).
		Msg("timeline misuse")
}
