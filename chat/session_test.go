package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/durable-agents/assistant/chat"
	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/durable"
	"github.com/durable-agents/assistant/engine"
	"github.com/durable-agents/assistant/step"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRuntime(store durable.Store) *durable.Runtime {
	return durable.NewRuntime(store,
		durable.WithLogger(quiet),
		durable.WithRetryPolicy(durable.RetryPolicy{
			InitialInterval: time.Millisecond,
			MaxAttempts:     1,
		}),
	)
}

// scriptedModel answers the step activity from a fixed list of outputs,
// recording every rendered input it sees.
type scriptedModel struct {
	mu      sync.Mutex
	outputs []step.Output
	next    int
	inputs  []step.Input
}

func (m *scriptedModel) activity(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in step.Input
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	if m.next >= len(m.outputs) {
		return nil, fmt.Errorf("model script exhausted after %d steps", m.next)
	}
	out := m.outputs[m.next]
	m.next++
	return json.Marshal(out)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

func (m *scriptedModel) input(i int) (step.Input, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.inputs) {
		return step.Input{}, false
	}
	return m.inputs[i], true
}

func finalText(text string) step.Output {
	return step.Output{OutputText: text, IsFinal: true}
}

func toolCall(name string, args map[string]any) step.Output {
	return step.Output{ToolCall: &step.ToolCall{Name: name, Arguments: args}}
}

// fixedTool backs the tool activity with a constant output and an
// invocation counter.
func fixedTool(output string, calls *atomic.Int64) durable.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var call step.ToolCall
		if err := json.Unmarshal(input, &call); err != nil {
			return nil, err
		}
		calls.Add(1)
		return json.Marshal(engine.ToolResult{Output: output})
	}
}

func register(t *testing.T, rt *durable.Runtime, model *scriptedModel, tool durable.ActivityFunc) {
	t.Helper()
	if err := rt.RegisterActivity(engine.ActivityStep, model.activity); err != nil {
		t.Fatalf("RegisterActivity(step): %v", err)
	}
	if tool == nil {
		tool = fixedTool("unused", &atomic.Int64{})
	}
	if err := rt.RegisterActivity(engine.ActivityTool, tool); err != nil {
		t.Fatalf("RegisterActivity(tool): %v", err)
	}
}

func latest(t *testing.T, rt *durable.Runtime, id string) (chat.Response, error) {
	t.Helper()
	data, err := rt.Query(id, chat.QueryLatestResponse)
	if err != nil {
		return chat.Response{}, err
	}
	var resp chat.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, nil
}

func waitForResponse(t *testing.T, rt *durable.Runtime, id string, cond func(chat.Response) bool) chat.Response {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := latest(t, rt, id)
		if err == nil && cond(resp) {
			return resp
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for response")
	return chat.Response{}
}

func submit(t *testing.T, rt *durable.Runtime, id, text string) {
	t.Helper()
	if err := rt.Signal(id, chat.SignalSubmitMessage, chat.Message{Text: text}); err != nil {
		t.Fatalf("submit %q: %v", text, err)
	}
}

func TestFirstTurn(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	model := &scriptedModel{outputs: []step.Output{finalText("FINAL SUMMARY: hi there")}}
	register(t, rt, model, nil)

	sess := chat.NewSession(chat.Config{}, nil)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Before the first turn completes the response is absent.
	waitForResponse(t, rt, "s1", func(r chat.Response) bool { return !r.Valid })

	submit(t, rt, "s1", "hello")
	resp := waitForResponse(t, rt, "s1", func(r chat.Response) bool { return r.Valid })
	if resp.Text != "FINAL SUMMARY: hi there" || resp.TurnIndex != 1 {
		t.Fatalf("response = %+v, want the final text at turn 1", resp)
	}
}

func TestBackToBackMessagesRunSequentially(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	model := &scriptedModel{outputs: []step.Output{
		finalText("FINAL SUMMARY: first answer"),
		finalText("FINAL SUMMARY: second answer"),
	}}
	register(t, rt, model, nil)

	sess := chat.NewSession(chat.Config{}, nil)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt, "s1", "first")
	submit(t, rt, "s1", "second")

	resp := waitForResponse(t, rt, "s1", func(r chat.Response) bool { return r.TurnIndex == 2 })
	if resp.Text != "FINAL SUMMARY: second answer" {
		t.Fatalf("turn 2 text = %q", resp.Text)
	}
	if model.calls() != 2 {
		t.Fatalf("model stepped %d times, want one per turn", model.calls())
	}

	// The second turn's input carries the whole first turn.
	in, ok := model.input(1)
	if !ok {
		t.Fatal("missing second step input")
	}
	var sawFirstAnswer, sawSecondMessage bool
	for _, msg := range in.Messages {
		if strings.Contains(msg.Content, "first answer") {
			sawFirstAnswer = true
		}
		if msg.Content == "second" {
			sawSecondMessage = true
		}
	}
	if !sawFirstAnswer || !sawSecondMessage {
		t.Fatalf("turn 2 input missing prior context: %+v", in.Messages)
	}
}

func TestCloseDrainsQueueThenTerminates(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	model := &scriptedModel{outputs: []step.Output{finalText("FINAL SUMMARY: done")}}
	register(t, rt, model, nil)

	sess := chat.NewSession(chat.Config{}, nil)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt, "s1", "one last thing")
	if err := rt.Signal("s1", chat.SignalClose, nil); err != nil {
		t.Fatalf("close: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		done, err := rt.SessionDone("s1")
		if done || errors.Is(err, durable.ErrSessionNotFound) {
			break
		}
		if err != nil {
			t.Fatalf("SessionDone: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("session did not terminate after close")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// The queued message still got its turn before termination.
	if model.calls() != 1 {
		t.Fatalf("model stepped %d times, want 1", model.calls())
	}
}

func TestToolTurnSurvivesRestart(t *testing.T) {
	store := durable.NewMemoryStore()
	var toolCalls atomic.Int64
	model := &scriptedModel{outputs: []step.Output{
		toolCall("get_weather", map[string]any{"location": "Berlin"}),
		finalText("FINAL SUMMARY: 18C and cloudy in Berlin"),
		finalText("FINAL SUMMARY: you are welcome"),
	}}
	toolDefs := []protocol.Tool{{Name: "get_weather", Description: "weather lookup"}}

	rt1 := newRuntime(store)
	register(t, rt1, model, fixedTool("18C, cloudy", &toolCalls))
	sess1 := chat.NewSession(chat.Config{}, toolDefs)
	if err := rt1.StartSession("s1", sess1.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt1, "s1", "weather in Berlin?")
	first := waitForResponse(t, rt1, "s1", func(r chat.Response) bool { return r.Valid })
	if first.TurnIndex != 1 || !strings.Contains(first.Text, "Berlin") {
		t.Fatalf("turn 1 = %+v", first)
	}
	if toolCalls.Load() != 1 {
		t.Fatalf("tool ran %d times, want 1", toolCalls.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt1.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// A fresh process over the same journal replays the session: the
	// recorded model and tool results are reused, not re-executed.
	stepsBefore := model.calls()
	rt2 := newRuntime(store)
	register(t, rt2, model, fixedTool("18C, cloudy", &toolCalls))
	err := rt2.Recover(func(string) durable.WorkflowFunc {
		return chat.NewSession(chat.Config{}, toolDefs).Workflow()
	})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	resp := waitForResponse(t, rt2, "s1", func(r chat.Response) bool { return r.Valid })
	if resp.Text != first.Text || resp.TurnIndex != 1 {
		t.Fatalf("replayed response = %+v, want %+v", resp, first)
	}
	if model.calls() != stepsBefore {
		t.Fatalf("model stepped during replay: %d -> %d", stepsBefore, model.calls())
	}
	if toolCalls.Load() != 1 {
		t.Fatalf("tool re-ran during replay: %d calls", toolCalls.Load())
	}

	// The recovered session keeps going: the next turn continues the
	// gap-free index sequence.
	submit(t, rt2, "s1", "thanks")
	resp = waitForResponse(t, rt2, "s1", func(r chat.Response) bool { return r.TurnIndex == 2 })
	if !strings.Contains(resp.Text, "welcome") {
		t.Fatalf("turn 2 text = %q", resp.Text)
	}
}

func TestCompanyResearchDelegation(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	model := &scriptedModel{outputs: []step.Output{
		// Supervisor delegates, the research agent answers, then the
		// supervisor wraps up.
		toolCall(chat.ToolCompanyResearch, map[string]any{"company": "Acme"}),
		finalText("FINAL ANSWER: # Acme\nAcme makes everything."),
		finalText("FINAL SUMMARY: Acme looks like a strong incumbent."),
	}}
	register(t, rt, model, nil)

	sess := chat.NewSession(chat.Config{}, nil)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt, "s1", "research Acme for me")
	resp := waitForResponse(t, rt, "s1", func(r chat.Response) bool { return r.Valid })
	if !strings.Contains(resp.Text, "strong incumbent") {
		t.Fatalf("response = %+v", resp)
	}
	if model.calls() != 3 {
		t.Fatalf("model stepped %d times, want 3", model.calls())
	}

	// The research step runs against the research prompt, not the
	// supervisor conversation.
	in, ok := model.input(1)
	if !ok || len(in.Messages) == 0 {
		t.Fatal("missing research step input")
	}
	if !strings.Contains(in.Messages[0].Content, "company research agent") {
		t.Fatalf("research step system prompt = %q", in.Messages[0].Content)
	}

	// The supervisor's wrap-up step sees the report excerpt.
	in, ok = model.input(2)
	if !ok {
		t.Fatal("missing wrap-up step input")
	}
	var sawReport bool
	for _, msg := range in.Messages {
		if strings.Contains(msg.Content, "Company research report (markdown excerpt):") &&
			strings.Contains(msg.Content, "Acme makes everything.") {
			sawReport = true
		}
	}
	if !sawReport {
		t.Fatal("report excerpt missing from supervisor history")
	}
}

func TestResearchToolFilter(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	model := &scriptedModel{outputs: []step.Output{
		toolCall(chat.ToolCompanyResearch, map[string]any{"company": "Acme"}),
		finalText("FINAL ANSWER: short report"),
		finalText("FINAL SUMMARY: done"),
	}}
	register(t, rt, model, nil)

	toolDefs := []protocol.Tool{
		{Name: "get_weather"},
		{Name: "browse_page"},
		{Name: "manage_email"},
	}
	sess := chat.NewSession(chat.Config{}, toolDefs)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt, "s1", "research Acme")
	waitForResponse(t, rt, "s1", func(r chat.Response) bool { return r.Valid })

	in, ok := model.input(1)
	if !ok {
		t.Fatal("missing research step input")
	}
	if len(in.Tools) != 1 || in.Tools[0].Name != "browse_page" {
		t.Fatalf("research tools = %+v, want only browse_page", in.Tools)
	}
}

func TestResearchReportExcerptKeepsValidUTF8(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	// 2400 bytes of two-byte runes, so a byte-indexed cut would land
	// inside a rune.
	longReport := strings.Repeat("é", 1200)
	model := &scriptedModel{outputs: []step.Output{
		toolCall(chat.ToolCompanyResearch, map[string]any{"company": "Acme"}),
		finalText("FINAL ANSWER: " + longReport),
		finalText("FINAL SUMMARY: done"),
	}}
	register(t, rt, model, nil)

	sess := chat.NewSession(chat.Config{}, nil)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt, "s1", "research Acme")
	waitForResponse(t, rt, "s1", func(r chat.Response) bool { return r.Valid })

	in, ok := model.input(2)
	if !ok {
		t.Fatal("missing wrap-up step input")
	}
	var excerpt string
	for _, msg := range in.Messages {
		if strings.Contains(msg.Content, "Company research report (markdown excerpt):") {
			excerpt = msg.Content
		}
	}
	if excerpt == "" {
		t.Fatal("report excerpt missing from supervisor history")
	}
	if !utf8.ValidString(excerpt) {
		t.Fatal("report excerpt is not valid UTF-8")
	}
	if !strings.Contains(excerpt, "...") {
		t.Fatal("truncated report excerpt lacks the ellipsis")
	}
	if strings.Contains(excerpt, longReport) {
		t.Fatal("report was not truncated")
	}
}

func TestResearchMalformedStepSurfacesAsToolFailure(t *testing.T) {
	store := durable.NewMemoryStore()
	rt := newRuntime(store)
	model := &scriptedModel{outputs: []step.Output{
		toolCall(chat.ToolCompanyResearch, map[string]any{"company": "Acme"}),
		// The research step violates the protocol: neither text nor a
		// tool call. The supervisor sees a tool failure and recovers.
		{},
		finalText("FINAL SUMMARY: research was unavailable"),
	}}
	register(t, rt, model, nil)

	sess := chat.NewSession(chat.Config{}, nil)
	if err := rt.StartSession("s1", sess.Workflow()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	submit(t, rt, "s1", "research Acme")
	resp := waitForResponse(t, rt, "s1", func(r chat.Response) bool { return r.Valid })
	if !strings.Contains(resp.Text, "research was unavailable") {
		t.Fatalf("response = %+v", resp)
	}
	if model.calls() != 3 {
		t.Fatalf("model stepped %d times, want the violation to end the research run", model.calls())
	}

	in, ok := model.input(2)
	if !ok {
		t.Fatal("missing recovery step input")
	}
	var sawFailure bool
	for _, msg := range in.Messages {
		if strings.Contains(msg.Content, "neither text nor a tool call") {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatal("research failure missing from supervisor history")
	}
}
