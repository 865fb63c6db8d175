package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/tools"
)

func sendEmail(to []string, subject, body string) string {
	recipients := "<no recipients>"
	if len(to) > 0 {
		recipients = strings.Join(to, ", ")
	}
	preview := strings.TrimSpace(body)
	if len(preview) > 80 {
		preview = preview[:77] + "..."
	}
	return fmt.Sprintf("Email sent to %s - Subject: %q - Preview: %q", recipients, subject, preview)
}

// RegisterEmail adds the manage_email tool: compose and send an email from
// a natural-language request.
func RegisterEmail(reg *tools.Registry) error {
	return reg.Register(protocol.Tool{
		Name: "manage_email",
		Description: "Compose and send a professional email based on a natural " +
			"language request. Use only when the user asks for an email.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{
					"type":        "string",
					"description": "Natural language description of the email to send.",
				},
			},
			"required": []string{"request"},
		},
	}, handleManageEmail)
}

func handleManageEmail(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Request string `json:"request"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %v", tools.ErrBadArguments, err)
	}
	if args.Request == "" {
		return "", fmt.Errorf("%w: request is required", tools.ErrBadArguments)
	}

	to := []string{"recipient@example.com"}
	subject := "Automated message from your assistant"
	body := fmt.Sprintf(
		"The user asked the assistant to perform the following action:\n\n%s\n\n"+
			"This message was composed by the assistant on the user's behalf.",
		args.Request,
	)

	summary := sendEmail(to, subject, body)
	return fmt.Sprintf(
		"%s\n\nA professional email was composed and sent to the recipient(s) above, "+
			"using the text of your request as the core message.",
		summary,
	), nil
}
