// Package gateway exposes sessions over connect RPC: two signals
// (submit, close) and one query (latest response), addressed by session
// identifier.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/durable-agents/assistant/chat"
	"github.com/durable-agents/assistant/durable"
)

// Procedure paths of the assistant service.
const (
	ProcedureStartSession      = "/assistant.v1.AssistantService/StartSession"
	ProcedureSubmitUserMessage = "/assistant.v1.AssistantService/SubmitUserMessage"
	ProcedureCloseSession      = "/assistant.v1.AssistantService/CloseSession"
	ProcedureGetLatestResponse = "/assistant.v1.AssistantService/GetLatestResponse"
)

type StartSessionRequest struct {
	// SessionID is optional; a fresh identifier is assigned when empty.
	SessionID string `json:"session_id,omitempty"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

type SubmitUserMessageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type SubmitUserMessageResponse struct{}

type CloseSessionRequest struct {
	SessionID string `json:"session_id"`
}

type CloseSessionResponse struct{}

type GetLatestResponseRequest struct {
	SessionID string `json:"session_id"`
}

type GetLatestResponseResponse struct {
	Valid     bool   `json:"valid"`
	Text      string `json:"text,omitempty"`
	TurnIndex int    `json:"turn_index,omitempty"`
}

// SessionStarter launches the workflow for a new session identifier.
type SessionStarter func(sessionID string) error

// Gateway routes RPCs to a durable runtime.
type Gateway struct {
	rt     *durable.Runtime
	start  SessionStarter
	logger *slog.Logger
}

// New creates a Gateway. The starter is invoked once per StartSession
// call with the (possibly generated) session identifier.
func New(rt *durable.Runtime, start SessionStarter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{rt: rt, start: start, logger: logger}
}

// Handler mounts all service procedures on one http.Handler.
func (g *Gateway) Handler() http.Handler {
	codec := connect.WithCodec(jsonCodec{})

	mux := http.NewServeMux()
	mux.Handle(ProcedureStartSession, connect.NewUnaryHandler(
		ProcedureStartSession, g.startSession, codec))
	mux.Handle(ProcedureSubmitUserMessage, connect.NewUnaryHandler(
		ProcedureSubmitUserMessage, g.submitUserMessage, codec))
	mux.Handle(ProcedureCloseSession, connect.NewUnaryHandler(
		ProcedureCloseSession, g.closeSession, codec))
	mux.Handle(ProcedureGetLatestResponse, connect.NewUnaryHandler(
		ProcedureGetLatestResponse, g.getLatestResponse, codec))
	return mux
}

func (g *Gateway) startSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error) {
	id := req.Msg.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	if err := g.start(id); err != nil {
		if errors.Is(err, durable.ErrSessionExists) {
			return nil, connect.NewError(connect.CodeAlreadyExists, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	g.logger.Info("session started", "session", id)
	return connect.NewResponse(&StartSessionResponse{SessionID: id}), nil
}

func (g *Gateway) submitUserMessage(ctx context.Context, req *connect.Request[SubmitUserMessageRequest]) (*connect.Response[SubmitUserMessageResponse], error) {
	if req.Msg.Text == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("message text is empty"))
	}

	err := g.rt.Signal(req.Msg.SessionID, chat.SignalSubmitMessage, chat.Message{Text: req.Msg.Text})
	if err != nil {
		return nil, signalError(err)
	}
	return connect.NewResponse(&SubmitUserMessageResponse{}), nil
}

func (g *Gateway) closeSession(ctx context.Context, req *connect.Request[CloseSessionRequest]) (*connect.Response[CloseSessionResponse], error) {
	err := g.rt.Signal(req.Msg.SessionID, chat.SignalClose, nil)
	if err != nil && !errors.Is(err, durable.ErrSessionDone) {
		// Closing an already-terminated session is a no-op.
		return nil, signalError(err)
	}
	return connect.NewResponse(&CloseSessionResponse{}), nil
}

func (g *Gateway) getLatestResponse(ctx context.Context, req *connect.Request[GetLatestResponseRequest]) (*connect.Response[GetLatestResponseResponse], error) {
	raw, err := g.rt.Query(req.Msg.SessionID, chat.QueryLatestResponse)
	if err != nil {
		if errors.Is(err, durable.ErrQueryNotFound) {
			// The workflow has not registered its handlers yet; callers
			// see the same absent response as before the first turn.
			return connect.NewResponse(&GetLatestResponseResponse{}), nil
		}
		if errors.Is(err, durable.ErrSessionNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	var resp chat.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&GetLatestResponseResponse{
		Valid:     resp.Valid,
		Text:      resp.Text,
		TurnIndex: resp.TurnIndex,
	}), nil
}

func signalError(err error) *connect.Error {
	switch {
	case errors.Is(err, durable.ErrSessionNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, durable.ErrSessionDone):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
