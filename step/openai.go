package step

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/durable-agents/assistant/core/protocol"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIStepper implements Stepper against any OpenAI-compatible
// chat-completions endpoint. Payloads are marshaled by hand so the adapter
// works with compatible gateways, not just the hosted API.
type OpenAIStepper struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	markers []string
}

// NewOpenAIStepper creates an adapter for the given model. An empty baseURL
// selects the hosted API; nil markers select DefaultFinalMarkers.
func NewOpenAIStepper(client *http.Client, baseURL, apiKey, model string, markers []string) *OpenAIStepper {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if markers == nil {
		markers = DefaultFinalMarkers
	}
	return &OpenAIStepper{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		markers: markers,
	}
}

type openAITool struct {
	Type     string        `json:"type"`
	Function protocol.Tool `json:"function"`
}

type openAIChatRequest struct {
	Model      string             `json:"model"`
	Messages   []protocol.Message `json:"messages"`
	Tools      []openAITool       `json:"tools,omitempty"`
	ToolChoice string             `json:"tool_choice,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      protocol.Message `json:"message"`
		FinishReason string           `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// Step sends the rendered conversation to the chat-completions endpoint and
// normalizes the first choice. A requested tool call wins over any text in
// the same message; its argument string is decoded into the structured form
// the dispatcher expects.
func (s *OpenAIStepper) Step(ctx context.Context, in Input) (Output, error) {
	body := openAIChatRequest{
		Model:    s.model,
		Messages: in.Messages,
	}
	if len(in.Tools) > 0 {
		body.Tools = make([]openAITool, 0, len(in.Tools))
		for _, t := range in.Tools {
			body.Tools = append(body.Tools, openAITool{Type: "function", Function: t})
		}
		body.ToolChoice = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Output{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Output{}, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("chat request returned status %d: %s", resp.StatusCode, truncateBody(data))
	}

	var decoded openAIChatResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Output{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Output{}, fmt.Errorf("chat response contained no choices")
	}

	msg := decoded.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := map[string]any{}
		if call.Arguments != "" {
			// Malformed argument JSON degrades to empty arguments; the
			// tool reports the missing fields back into history.
			_ = json.Unmarshal([]byte(call.Arguments), &args)
		}
		return Output{ToolCall: &ToolCall{Name: call.Name, Arguments: args}}, nil
	}

	return Output{
		OutputText: msg.Content,
		IsFinal:    IsFinalText(msg.Content, s.markers),
	}, nil
}

func truncateBody(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
