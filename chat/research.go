package chat

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/durable"
	"github.com/durable-agents/assistant/engine"
	"github.com/durable-agents/assistant/history"
	"github.com/durable-agents/assistant/step"
)

// ToolCompanyResearch is the tool name the supervisor uses to delegate
// research. It is handled inside the workflow, not by the tool activity:
// the research loop runs its own model steps on the parent journal.
const ToolCompanyResearch = "company_research"

const (
	// DefaultResearchMaxSteps bounds the research loop independently of
	// the parent turn's step budget.
	DefaultResearchMaxSteps = 30
	// reportExcerptLimit caps how much of the report is handed back to
	// the supervisor's history.
	reportExcerptLimit = 2000
	reportEllipsis     = "..."
)

// researchToolNames are the registered tools the research agent may use.
var researchToolNames = map[string]bool{"browse_page": true}

// CompanyResearchTool returns the tool definition advertised to the
// supervisor model.
func CompanyResearchTool() protocol.Tool {
	return protocol.Tool{
		Name: ToolCompanyResearch,
		Description: "Delegate in-depth research about a company to a dedicated " +
			"research agent. Returns a markdown report excerpt.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"company": map[string]any{
					"type":        "string",
					"description": "Name of the company to research.",
				},
			},
			"required": []string{"company"},
		},
	}
}

// runCompanyResearch is the delegate behind ToolCompanyResearch. It drives
// a sub-agent with its own history and prompt over the session's journal,
// so a crash mid-research resumes inside the research loop.
func (s *Session) runCompanyResearch(ctx context.Context, wctx durable.Context, call step.ToolCall) (string, error) {
	company := call.StringArg("company", "company_name", "name")
	if company == "" {
		return "", researchError("missing company argument")
	}

	hist := history.New()
	hist.Append(history.System(researchPrompt))
	hist.Append(history.Task(fmt.Sprintf("Research the company %q and produce the report.", company)))

	defs := s.researchTools()

	for i := 0; i < s.cfg.ResearchMaxSteps; i++ {
		in := step.Input{Messages: hist.Render(), Tools: defs}

		var out step.Output
		if err := wctx.ExecuteActivity(ctx, engine.ActivityStep, in, &out); err != nil {
			return "", err
		}

		if out.ToolCall != nil {
			tc := *out.ToolCall
			var result engine.ToolResult
			if err := wctx.ExecuteActivity(ctx, engine.ActivityTool, tc, &result); err != nil {
				var aerr *durable.ActivityError
				if !errors.As(err, &aerr) {
					return "", err
				}
				hist.Append(history.ToolOutput(tc.Name, fmt.Sprintf("tool %s failed: %s", tc.Name, aerr.Reason)))
				continue
			}
			hist.Append(history.ToolOutput(tc.Name, result.Output))
			hist.Append(history.Task(researchReplanPrompt))
			continue
		}

		if out.OutputText == "" {
			// Neither text nor a tool call violates the step protocol.
			return "", researchError("step produced neither text nor a tool call")
		}
		hist.Append(history.Model(out.OutputText))
		if out.IsFinal || step.IsFinalText(out.OutputText, nil) {
			return formatReport(step.StripMarker(out.OutputText, nil)), nil
		}
	}

	return "", researchError(fmt.Sprintf("no report within %d steps", s.cfg.ResearchMaxSteps))
}

// researchError shapes a research failure like a tool activity failure, so
// the supervisor records it and the turn continues.
func researchError(reason string) *durable.ActivityError {
	return &durable.ActivityError{Activity: ToolCompanyResearch, Reason: reason}
}

// researchTools selects the session tools the research agent is allowed
// to call.
func (s *Session) researchTools() []protocol.Tool {
	var defs []protocol.Tool
	for _, def := range s.toolDefs {
		if researchToolNames[def.Name] {
			defs = append(defs, def)
		}
	}
	return defs
}

func formatReport(report string) string {
	if len(report) > reportExcerptLimit {
		// Cut on a rune boundary so the excerpt stays valid UTF-8.
		cut := reportExcerptLimit - len(reportEllipsis)
		for cut > 0 && !utf8.RuneStart(report[cut]) {
			cut--
		}
		report = report[:cut] + reportEllipsis
	}
	return "Company research report (markdown excerpt):\n\n" + report
}
