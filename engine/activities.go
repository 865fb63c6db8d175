package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/durable-agents/assistant/durable"
	"github.com/durable-agents/assistant/step"
	"github.com/durable-agents/assistant/tools"
)

// StepActivity adapts a Stepper into the activity backing ActivityStep.
// Output validation stays with the engine: an empty step is journaled as
// returned so replay resolves it the same way the live turn did.
func StepActivity(stepper step.Stepper) durable.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in step.Input
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("decode step input: %w", err)
		}
		out, err := stepper.Step(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}

// ToolActivity adapts a tool registry into the activity backing
// ActivityTool.
func ToolActivity(registry *tools.Registry) durable.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var call step.ToolCall
		if err := json.Unmarshal(input, &call); err != nil {
			return nil, fmt.Errorf("decode tool call: %w", err)
		}
		output, err := registry.Execute(ctx, call)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ToolResult{Output: output})
	}
}
