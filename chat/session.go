// Package chat implements the long-lived assistant session: a durable
// workflow that consumes user messages one at a time, runs each as an
// engine turn, and exposes the latest response through a query.
package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/durable"
	"github.com/durable-agents/assistant/engine"
	"github.com/durable-agents/assistant/history"
	"github.com/durable-agents/assistant/observability"
)

// Signal and query names addressed to a session by its identifier.
const (
	SignalSubmitMessage = "submit_user_message"
	SignalClose         = "close"
	QueryLatestResponse = "get_latest_response"
)

// Message is one submitted user message.
type Message struct {
	Text string `json:"text"`
}

// Response is the latest completed turn's answer. Valid is false until
// the first turn completes. TurnIndex starts at 1 and increases by
// exactly one per completed turn.
type Response struct {
	Valid     bool   `json:"valid"`
	Text      string `json:"text"`
	TurnIndex int    `json:"turn_index"`
}

// Config tunes a session. Zero values take the defaults.
type Config struct {
	// SystemNote is an optional extra system entry appended after the
	// built-in supervisor prompt.
	SystemNote string

	Engine           engine.Config
	ResearchMaxSteps int
	Observer         observability.Observer
}

// Session is the workflow state for one conversation. All fields under mu
// are mutated only by signal handlers and the workflow loop; queries take
// a read snapshot.
type Session struct {
	cfg      Config
	toolDefs []protocol.Tool

	mu        sync.Mutex
	pending   []Message
	closed    bool
	latest    Response
	turnIndex int
}

// NewSession creates a session advertising the given tools plus the
// built-in company research delegate. A Session runs at most one
// workflow; recovery constructs a fresh Session per relaunch.
func NewSession(cfg Config, toolDefs []protocol.Tool) *Session {
	if cfg.Observer == nil {
		cfg.Observer = observability.NoOpObserver{}
	}
	if cfg.ResearchMaxSteps <= 0 {
		cfg.ResearchMaxSteps = DefaultResearchMaxSteps
	}
	defs := append([]protocol.Tool(nil), toolDefs...)
	defs = append(defs, CompanyResearchTool())
	return &Session{cfg: cfg, toolDefs: defs}
}

// Workflow returns the durable workflow function for this session.
func (s *Session) Workflow() durable.WorkflowFunc {
	return s.run
}

func (s *Session) run(ctx context.Context, wctx durable.Context) error {
	// Handlers are registered before the first suspension point so that
	// journaled signals replay into this fresh state.
	wctx.SetSignalHandler(SignalSubmitMessage, func(payload json.RawMessage) {
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.pending = append(s.pending, msg)
	})
	wctx.SetSignalHandler(SignalClose, func(json.RawMessage) {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	wctx.SetQueryHandler(QueryLatestResponse, func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.latest, nil
	})

	hist := history.New()
	hist.Append(history.System(supervisorPrompt))
	if s.cfg.SystemNote != "" {
		hist.Append(history.System(s.cfg.SystemNote))
	}
	hist.Append(history.Task(chatTaskPrompt))

	eng := engine.New(hist, s.toolDefs, s.cfg.Engine,
		engine.WithObserver(s.cfg.Observer),
		engine.WithDelegate(ToolCompanyResearch, s.runCompanyResearch),
	)

	for {
		err := wctx.Await(ctx, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return len(s.pending) > 0 || s.closed
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		// Close drains the queue first: a message accepted before close
		// still gets its turn.
		if len(s.pending) == 0 && s.closed {
			s.mu.Unlock()
			return nil
		}
		msg := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		hist.Append(history.User(msg.Text))
		res, err := eng.RunTurn(ctx, wctx)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.turnIndex++
		s.latest = Response{Valid: true, Text: res.Text, TurnIndex: s.turnIndex}
		s.mu.Unlock()
	}
}
