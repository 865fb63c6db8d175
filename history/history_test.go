package history_test

import (
	"strings"
	"testing"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/history"
)

func TestAppend_PreservesOrder(t *testing.T) {
	h := history.New()

	h.Append(history.System("sys"))
	h.Append(history.User("first"))
	h.Append(history.Model("thinking"))
	h.Append(history.User("second"))

	entries := h.Entries()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	want := []history.Kind{
		history.KindSystem,
		history.KindUser,
		history.KindModel,
		history.KindUser,
	}
	for i, k := range want {
		if entries[i].Kind != k {
			t.Errorf("entry %d: got kind %q, want %q", i, entries[i].Kind, k)
		}
	}
}

func TestRender_RoleMapping(t *testing.T) {
	h := history.New()
	h.Append(history.System("instructions"))
	h.Append(history.Task("the task"))
	h.Append(history.User("hello"))
	h.Append(history.Model("hi"))

	msgs := h.Render()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	want := []protocol.Role{
		protocol.RoleSystem,
		protocol.RoleUser,
		protocol.RoleUser,
		protocol.RoleAssistant,
	}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Errorf("message %d: got role %q, want %q", i, msgs[i].Role, role)
		}
	}
}

func TestRender_ToolOutputAttribution(t *testing.T) {
	h := history.New()
	h.Append(history.ToolOutput("get_weather", "Current weather for Boston: 18C"))

	msgs := h.Render()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Role != protocol.RoleUser {
		t.Errorf("got role %q, want user", msgs[0].Role)
	}
	if !strings.HasPrefix(msgs[0].Content, "[Tool get_weather output]: ") {
		t.Errorf("tool output not attributed: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Current weather for Boston") {
		t.Errorf("tool content missing: %q", msgs[0].Content)
	}
}

func TestEntries_DefensiveCopy(t *testing.T) {
	h := history.New()
	h.Append(history.User("original"))

	entries := h.Entries()
	entries[0].Content = "mutated"

	if h.Entries()[0].Content != "original" {
		t.Error("mutating the returned slice affected the log")
	}
}

func TestRender_PureFunction(t *testing.T) {
	h := history.New()
	h.Append(history.User("hello"))

	first := h.Render()
	second := h.Render()

	if len(first) != len(second) {
		t.Fatalf("renders differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Role != second[i].Role || first[i].Content != second[i].Content {
			t.Errorf("message %d differs between renders", i)
		}
	}
	if h.Len() != 1 {
		t.Errorf("render mutated the log: len %d", h.Len())
	}
}
