// Package engine runs one assistant turn as a bounded loop of model steps
// and tool invocations. Every side effect goes through durable activities,
// so a turn interrupted by a crash resumes from its journal instead of
// re-calling the model or re-invoking tools.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/durable"
	"github.com/durable-agents/assistant/history"
	"github.com/durable-agents/assistant/observability"
	"github.com/durable-agents/assistant/step"
)

// Durable activity names shared between the engine and runtime wiring.
const (
	ActivityStep = "llm.step"
	ActivityTool = "tool.invoke"
)

const (
	// DefaultMaxSteps bounds model steps within a single turn.
	DefaultMaxSteps = 8
	// DefaultRepeatThreshold is the number of invocations of one tool
	// tolerated per turn before the loop guard trips.
	DefaultRepeatThreshold = 3
)

// Responses synthesized when the model yields nothing usable.
const (
	noResponseText        = "The assistant could not produce a response within the step budget."
	emptyStepText         = "The assistant produced no actionable output. Please try rephrasing your request."
	turnFailedText        = "The assistant encountered an internal error and could not complete the request."
	repeatedToolTextEmpty = "The assistant repeatedly invoked the same tool without producing an answer."
)

// Delegate handles a tool name inside the workflow itself rather than
// through the tool activity. Delegates must be deterministic apart from
// the activities they execute through wctx.
type Delegate func(ctx context.Context, wctx durable.Context, call step.ToolCall) (string, error)

// Config tunes the turn loop. Zero values take the defaults.
type Config struct {
	MaxSteps        int
	RepeatThreshold int
	FinalMarkers    []string
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.RepeatThreshold <= 0 {
		c.RepeatThreshold = DefaultRepeatThreshold
	}
	if len(c.FinalMarkers) == 0 {
		c.FinalMarkers = step.DefaultFinalMarkers
	}
	return c
}

// ToolCallRecord describes one tool invocation made during a turn.
type ToolCallRecord struct {
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// ToolResult is the journaled output of the tool activity.
type ToolResult struct {
	Output string `json:"output"`
}

// TurnResult is the outcome of one completed turn. Synthesized marks text
// the engine produced itself rather than the model; IsError marks turns
// that ended on an unrecoverable step failure.
type TurnResult struct {
	Text        string
	Steps       int
	ToolCalls   []ToolCallRecord
	Synthesized bool
	IsError     bool
}

// Engine drives turns over a shared conversation history.
type Engine struct {
	history   *history.History
	tools     []protocol.Tool
	delegates map[string]Delegate
	cfg       Config
	observer  observability.Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver attaches an observer for turn lifecycle events.
func WithObserver(obs observability.Observer) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithDelegate routes calls to the named tool through the given delegate
// instead of the tool activity.
func WithDelegate(name string, d Delegate) Option {
	return func(e *Engine) { e.delegates[name] = d }
}

// New creates an Engine over the given history. The tool definitions are
// advertised to the model on every step.
func New(hist *history.History, toolDefs []protocol.Tool, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		history:   hist,
		tools:     toolDefs,
		delegates: make(map[string]Delegate),
		cfg:       cfg.withDefaults(),
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// History exposes the engine's conversation history.
func (e *Engine) History() *history.History { return e.history }

// RunTurn executes model steps until the model produces a final response,
// the step budget runs out, or the repeated-tool guard trips. The returned
// error is reserved for workflow-level failures such as replay divergence;
// model and tool failures resolve into a TurnResult instead.
func (e *Engine) RunTurn(ctx context.Context, wctx durable.Context) (*TurnResult, error) {
	e.emit(ctx, EventTurnStart, observability.LevelInfo, map[string]any{
		"history_len": e.history.Len(),
	})

	toolUses := make(map[string]int)
	lastToolOutput := make(map[string]string)
	var records []ToolCallRecord
	var lastText string

	for stepIndex := 1; stepIndex <= e.cfg.MaxSteps; stepIndex++ {
		in := step.Input{Messages: e.history.Render(), Tools: e.tools}

		var out step.Output
		if err := wctx.ExecuteActivity(ctx, ActivityStep, in, &out); err != nil {
			var aerr *durable.ActivityError
			if !errors.As(err, &aerr) {
				return nil, err
			}
			e.emit(ctx, EventStepFailed, observability.LevelError, map[string]any{
				"step":  stepIndex,
				"error": aerr.Reason,
			})
			return e.finish(ctx, TurnResult{
				Text:        turnFailedText,
				Steps:       stepIndex,
				ToolCalls:   records,
				Synthesized: true,
				IsError:     true,
			}), nil
		}

		if out.ToolCall == nil {
			if out.OutputText == "" {
				// Neither text nor a tool call violates the step protocol.
				e.emit(ctx, EventStepEmpty, observability.LevelWarning, map[string]any{"step": stepIndex})
				return e.finish(ctx, TurnResult{
					Text:        emptyStepText,
					Steps:       stepIndex,
					ToolCalls:   records,
					Synthesized: true,
					IsError:     true,
				}), nil
			}

			e.history.Append(history.Model(out.OutputText))
			if out.IsFinal || step.IsFinalText(out.OutputText, e.cfg.FinalMarkers) {
				return e.finishNoAppend(ctx, TurnResult{
					Text:      out.OutputText,
					Steps:     stepIndex,
					ToolCalls: records,
				}), nil
			}
			lastText = out.OutputText
			continue
		}

		call := *out.ToolCall
		toolUses[call.Name]++
		if toolUses[call.Name] > e.cfg.RepeatThreshold {
			e.emit(ctx, EventGuardTripped, observability.LevelWarning, map[string]any{
				"step": stepIndex,
				"tool": call.Name,
				"uses": toolUses[call.Name],
			})
			text := lastToolOutput[call.Name]
			if text == "" {
				text = repeatedToolTextEmpty
			}
			return e.finish(ctx, TurnResult{
				Text:        text,
				Steps:       stepIndex,
				ToolCalls:   records,
				Synthesized: true,
			}), nil
		}

		output, err := e.invoke(ctx, wctx, call)
		if err != nil {
			var aerr *durable.ActivityError
			if !errors.As(err, &aerr) {
				return nil, err
			}
			// Tool failures are recoverable: the model sees the error text
			// and may retry or answer without the tool.
			e.emit(ctx, EventToolFailed, observability.LevelWarning, map[string]any{
				"step":  stepIndex,
				"tool":  call.Name,
				"error": aerr.Reason,
			})
			failure := fmt.Sprintf("tool %s failed: %s", call.Name, aerr.Reason)
			e.history.Append(history.ToolOutput(call.Name, failure))
			records = append(records, ToolCallRecord{Name: call.Name, Output: failure, Failed: true})
			continue
		}

		e.emit(ctx, EventToolInvoked, observability.LevelVerbose, map[string]any{
			"step": stepIndex,
			"tool": call.Name,
		})
		lastToolOutput[call.Name] = output
		e.history.Append(history.ToolOutput(call.Name, output))
		records = append(records, ToolCallRecord{Name: call.Name, Output: output})
	}

	// Budget exhausted without a final response.
	e.emit(ctx, EventBudgetExhausted, observability.LevelWarning, map[string]any{
		"max_steps": e.cfg.MaxSteps,
	})
	if lastText == "" {
		return e.finish(ctx, TurnResult{
			Text:        noResponseText,
			Steps:       e.cfg.MaxSteps,
			ToolCalls:   records,
			Synthesized: true,
		}), nil
	}
	// lastText is already the trailing model entry in the history.
	return e.finishNoAppend(ctx, TurnResult{
		Text:        lastText,
		Steps:       e.cfg.MaxSteps,
		ToolCalls:   records,
		Synthesized: true,
	}), nil
}

// invoke routes a tool call through its delegate when one is registered,
// otherwise through the tool activity.
func (e *Engine) invoke(ctx context.Context, wctx durable.Context, call step.ToolCall) (string, error) {
	if delegate, ok := e.delegates[call.Name]; ok {
		return delegate(ctx, wctx, call)
	}
	var result ToolResult
	if err := wctx.ExecuteActivity(ctx, ActivityTool, call, &result); err != nil {
		return "", err
	}
	return result.Output, nil
}

// finish records a result whose text came from the engine itself, so it is
// appended to the history as the model entry for the turn.
func (e *Engine) finish(ctx context.Context, res TurnResult) *TurnResult {
	e.history.Append(history.Model(res.Text))
	return e.finishNoAppend(ctx, res)
}

func (e *Engine) finishNoAppend(ctx context.Context, res TurnResult) *TurnResult {
	e.emit(ctx, EventTurnEnd, observability.LevelInfo, map[string]any{
		"steps":       res.Steps,
		"tool_calls":  len(res.ToolCalls),
		"synthesized": res.Synthesized,
		"is_error":    res.IsError,
	})
	return &res
}
