package step

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/durable-agents/assistant/core/protocol"
)

// GeminiStepper implements Stepper on the Gemini API.
type GeminiStepper struct {
	client  *genai.Client
	model   string
	markers []string
}

// NewGeminiStepper creates a Gemini-backed adapter. An empty baseURL
// selects the hosted endpoint; nil markers select DefaultFinalMarkers.
func NewGeminiStepper(ctx context.Context, apiKey, baseURL, model string, markers []string) (*GeminiStepper, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if markers == nil {
		markers = DefaultFinalMarkers
	}
	return &GeminiStepper{client: client, model: model, markers: markers}, nil
}

// Step converts the rendered conversation into Gemini contents, folding
// system messages into the system instruction, and normalizes the first
// candidate into text or a single tool call.
func (s *GeminiStepper) Step(ctx context.Context, in Input) (Output, error) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(in.Messages))

	for _, msg := range in.Messages {
		switch msg.Role {
		case protocol.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case protocol.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}
	if len(in.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(in.Tools))
		for _, t := range in.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return Output{}, fmt.Errorf("gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Output{}, fmt.Errorf("gemini response contained no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			return Output{ToolCall: &ToolCall{Name: part.FunctionCall.Name, Arguments: args}}, nil
		}
		text.WriteString(part.Text)
	}

	out := text.String()
	return Output{
		OutputText: out,
		IsFinal:    IsFinalText(out, s.markers),
	}, nil
}
