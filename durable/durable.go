// Package durable provides replay-safe execution for long-lived sessions.
//
// A session runs a workflow function on a single goroutine. Everything the
// function does between its two suspension points (awaiting a condition,
// executing an activity) must be a pure function of already-observed
// inputs: no clocks, no randomness, no direct network or tool calls.
// Nondeterminism is routed exclusively through activities, whose results
// are journaled once and replayed thereafter, and signals, which are
// journaled on receipt and delivered only at suspension points. Re-running
// a workflow function against its journal therefore reproduces identical
// state and branching without re-issuing completed side effects.
package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for the runtime's signal/query surface.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already started")
	ErrSessionDone      = errors.New("session has completed")
	ErrActivityNotFound = errors.New("activity not registered")
	ErrQueryNotFound    = errors.New("query handler not registered")
	ErrNonDeterministic = errors.New("replay diverged from journal")
)

// ActivityError is a terminal activity failure: the activity exhausted its
// retry policy (or failed on a non-retryable condition) and the failure was
// journaled. Replays reproduce the same error without re-execution.
type ActivityError struct {
	Activity string
	Reason   string
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed: %s", e.Activity, e.Reason)
}

// ActivityFunc is a registered activity implementation. Input and output
// are JSON payloads; the runtime handles encoding at the call boundary.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// SignalHandler consumes a journaled signal payload. Handlers run on the
// session's workflow goroutine at suspension points, and must restrict
// themselves to state mutations the workflow reads only at Await
// predicates; that restriction is what keeps delivery replay-equivalent.
type SignalHandler func(payload json.RawMessage)

// QueryHandler answers a synchronous, side-effect-free query. Handlers run
// on the caller's goroutine and must not block on workflow progress.
type QueryHandler func() (any, error)

// Context is the narrow surface a workflow function consumes.
type Context interface {
	// SessionID returns the stable identifier this session is addressed by.
	SessionID() string

	// ExecuteActivity runs (or replays) a named activity. input is
	// JSON-encoded; the recorded result is decoded into output. Transient
	// failures are retried per the runtime policy; a terminal failure is
	// returned as *ActivityError, identically on replay.
	ExecuteActivity(ctx context.Context, name string, input, output any) error

	// Await suspends until the predicate over session state becomes true.
	// Pending signals are delivered before each evaluation.
	Await(ctx context.Context, predicate func() bool) error

	// SetSignalHandler binds a named signal to a handler. Must be called
	// before the first suspension point so replayed signals find their
	// handler.
	SetSignalHandler(name string, handler SignalHandler)

	// SetQueryHandler binds a named query to a handler.
	SetQueryHandler(name string, handler QueryHandler)
}

// WorkflowFunc is the deterministic body of a session. ctx is cancelled on
// runtime shutdown; wctx is the durable surface.
type WorkflowFunc func(ctx context.Context, wctx Context) error
