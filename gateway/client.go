package gateway

import (
	"context"

	"connectrpc.com/connect"

	"github.com/durable-agents/assistant/chat"
)

// Client is a typed connect client for the assistant service.
type Client struct {
	start  *connect.Client[StartSessionRequest, StartSessionResponse]
	submit *connect.Client[SubmitUserMessageRequest, SubmitUserMessageResponse]
	close  *connect.Client[CloseSessionRequest, CloseSessionResponse]
	latest *connect.Client[GetLatestResponseRequest, GetLatestResponseResponse]
}

// NewClient creates a Client against the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	codec := connect.WithCodec(jsonCodec{})
	return &Client{
		start: connect.NewClient[StartSessionRequest, StartSessionResponse](
			httpClient, baseURL+ProcedureStartSession, codec),
		submit: connect.NewClient[SubmitUserMessageRequest, SubmitUserMessageResponse](
			httpClient, baseURL+ProcedureSubmitUserMessage, codec),
		close: connect.NewClient[CloseSessionRequest, CloseSessionResponse](
			httpClient, baseURL+ProcedureCloseSession, codec),
		latest: connect.NewClient[GetLatestResponseRequest, GetLatestResponseResponse](
			httpClient, baseURL+ProcedureGetLatestResponse, codec),
	}
}

// StartSession starts a session, returning its identifier. Pass an empty
// id to let the service assign one.
func (c *Client) StartSession(ctx context.Context, id string) (string, error) {
	resp, err := c.start.CallUnary(ctx, connect.NewRequest(&StartSessionRequest{SessionID: id}))
	if err != nil {
		return "", err
	}
	return resp.Msg.SessionID, nil
}

// SubmitMessage enqueues one user message.
func (c *Client) SubmitMessage(ctx context.Context, id, text string) error {
	_, err := c.submit.CallUnary(ctx, connect.NewRequest(&SubmitUserMessageRequest{SessionID: id, Text: text}))
	return err
}

// CloseSession requests session termination. Idempotent.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	_, err := c.close.CallUnary(ctx, connect.NewRequest(&CloseSessionRequest{SessionID: id}))
	return err
}

// LatestResponse reads the latest completed turn's response. Valid is
// false before the first turn completes.
func (c *Client) LatestResponse(ctx context.Context, id string) (chat.Response, error) {
	resp, err := c.latest.CallUnary(ctx, connect.NewRequest(&GetLatestResponseRequest{SessionID: id}))
	if err != nil {
		return chat.Response{}, err
	}
	return chat.Response{
		Valid:     resp.Msg.Valid,
		Text:      resp.Msg.Text,
		TurnIndex: resp.Msg.TurnIndex,
	}, nil
}
