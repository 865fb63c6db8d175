// Package step defines the request/response contract between the turn loop
// and the language-model adapters. A step asks the model "what next" for a
// rendered history snapshot and normalizes the answer into either assistant
// text or exactly one requested tool invocation.
//
// Adapters are externally-mediated and non-deterministic; they run as
// durable activities, never inside the deterministic loop itself.
package step

import (
	"context"
	"errors"

	"github.com/durable-agents/assistant/core/protocol"
)

// ErrEmptyStep reports a protocol violation: a step produced neither
// assistant text nor a tool call.
var ErrEmptyStep = errors.New("step produced neither output text nor a tool call")

// ToolCall is a model-requested tool invocation with decoded, structured
// arguments. Immutable, single-use. The design supports one tool call per
// step, not parallel calls.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// StringArg returns the first non-empty string value among the named
// argument keys. Models are loose about argument naming, so callers list
// acceptable aliases.
func (tc ToolCall) StringArg(keys ...string) string {
	for _, key := range keys {
		if v, ok := tc.Arguments[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Input is a snapshot of the rendered conversation plus the tool
// definitions the model may request. Immutable once constructed.
type Input struct {
	Messages []protocol.Message `json:"messages"`
	Tools    []protocol.Tool    `json:"tools,omitempty"`
}

// Output is the normalized adapter result. Exactly one of ToolCall or
// OutputText is meaningfully populated; IsFinal is true iff OutputText
// begins with a recognized terminal marker.
type Output struct {
	OutputText string    `json:"output_text,omitempty"`
	ToolCall   *ToolCall `json:"tool_call,omitempty"`
	IsFinal    bool      `json:"is_final"`
}

// Validate reports ErrEmptyStep when the output carries neither text nor a
// tool call.
func (o Output) Validate() error {
	if o.ToolCall == nil && o.OutputText == "" {
		return ErrEmptyStep
	}
	return nil
}

// Stepper turns an Input into a normalized Output. Implementations must be
// safe for concurrent use; they are shared process-wide across sessions.
type Stepper interface {
	Step(ctx context.Context, in Input) (Output, error)
}
