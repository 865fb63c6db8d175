package engine

import (
	"context"
	"time"

	"github.com/durable-agents/assistant/observability"
)

// Turn lifecycle event types.
const (
	EventTurnStart       observability.EventType = "engine.turn.start"
	EventTurnEnd         observability.EventType = "engine.turn.end"
	EventToolInvoked     observability.EventType = "engine.tool.invoked"
	EventToolFailed      observability.EventType = "engine.tool.failed"
	EventStepFailed      observability.EventType = "engine.step.failed"
	EventStepEmpty       observability.EventType = "engine.step.empty"
	EventGuardTripped    observability.EventType = "engine.guard.tripped"
	EventBudgetExhausted observability.EventType = "engine.budget.exhausted"
)

func (e *Engine) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	e.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "engine",
		Data:      data,
	})
}
