package timeline

import (
	"errors"
	"fmt"
)

// Usage errors. They signal an invalid sequence of calls on a Node and are
// always wrapped in a *UsageError.
var (
	// ErrAlreadyForked is returned by All or Race on a node that already forked.
	ErrAlreadyForked = errors.New("all or race already called, cannot call twice")
	// ErrForkedCannotSettle is returned by Resolve or Reject on a forked node;
	// only its children can settle it.
	ErrForkedCannotSettle = errors.New("all or race already called, cannot resolve or reject directly")
	// ErrAlreadySettled is returned by Resolve, Reject, All or Race on a node
	// that already resolved or rejected.
	ErrAlreadySettled = errors.New("resolve or reject already called")
	// ErrInvalidFanout is returned by All or Race when asked for fewer than one child.
	ErrInvalidFanout = errors.New("fan-out must be at least 1")
)

// UsageError reports misuse of a Node. Err is one of the sentinel errors above.
type UsageError struct {
	Op       string // "all", "race", "resolve" or "reject".
	Timeline string // Timeline name.
	Branch   string // Node branch ("" for the root).
	Detail   string // Optional diagnostic detail.
	Err      error
}

func (e *UsageError) Error() string {
	where := e.Timeline
	if e.Branch != "" {
		where += "[" + e.Branch + "]"
	}
	msg := fmt.Sprintf("timeline %q: %s: %v", where, e.Op, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *UsageError) Unwrap() error { return e.Err }

// IsUsageError reports whether err is or wraps a *UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
