package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/tools"
)

// availableTimeSlots returns fixed pseudo-availability so the model has
// something deterministic to work with. A real integration would query a
// calendar backend here.
func availableTimeSlots() []string {
	return []string{"09:00", "14:00", "16:00"}
}

func createCalendarEvent(title, start, end, location string, attendees []string) string {
	display := "no attendees"
	if len(attendees) > 0 {
		display = strings.Join(attendees, ", ")
	}
	locationDisplay := ""
	if location != "" {
		locationDisplay = " at " + location
	}
	return fmt.Sprintf(
		"Event created: %s%s from %s to %s with %d attendees (%s).",
		title, locationDisplay, start, end, len(attendees), display,
	)
}

// RegisterCalendar adds the schedule_event tool: a high-level scheduling
// capability driven by a natural-language request.
func RegisterCalendar(reg *tools.Registry) error {
	return reg.Register(protocol.Tool{
		Name: "schedule_event",
		Description: "Schedule a calendar event from a natural language request. " +
			"Use only for explicit scheduling or changes to meetings.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{
					"type":        "string",
					"description": "Natural language description of the meeting to schedule.",
				},
			},
			"required": []string{"request"},
		},
	}, handleScheduleEvent)
}

func handleScheduleEvent(_ context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Request string `json:"request"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %v", tools.ErrBadArguments, err)
	}
	if args.Request == "" {
		return "", fmt.Errorf("%w: request is required", tools.ErrBadArguments)
	}

	// Demo implementation: synthesize a plausible event rather than
	// parsing the natural language.
	const date = "2024-01-15"
	attendees := []string{"team@example.com"}
	slot := availableTimeSlots()[0]

	start := fmt.Sprintf("%sT%s:00", date, slot)
	var hour int
	fmt.Sscanf(slot, "%d:", &hour)
	end := fmt.Sprintf("%sT%02d:00", date, hour+1)

	summary := createCalendarEvent("Team meeting", start, end, "Virtual", attendees)
	return fmt.Sprintf("%s The event was scheduled in response to: %q.", summary, args.Request), nil
}
