package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/tools"
)

const browseMaxChars = 4000

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// RegisterBrowse adds the browse_page tool used by the research sub-agent:
// fetch a URL and return its text content with markup stripped.
func RegisterBrowse(reg *tools.Registry, cfg Config) error {
	client := cfg.client()

	return reg.Register(protocol.Tool{
		Name:        "browse_page",
		Description: "Fetch a web page and return its visible text content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Absolute http(s) URL of the page to fetch.",
				},
			},
			"required": []string{"url"},
		},
	}, func(ctx context.Context, raw json.RawMessage) (string, error) {
		return handleBrowsePage(ctx, client, raw)
	})
}

func handleBrowsePage(ctx context.Context, client *http.Client, raw json.RawMessage) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %v", tools.ErrBadArguments, err)
	}
	if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
		return "", fmt.Errorf("%w: url must be absolute http(s)", tools.ErrBadArguments)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}

	text := stripHTML(string(body))
	if len(text) > browseMaxChars {
		text = text[:browseMaxChars-3] + "..."
	}
	return text, nil
}

func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
