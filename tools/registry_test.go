package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/step"
	"github.com/durable-agents/assistant/tools"
)

func echoTool(name string) (protocol.Tool, tools.Handler) {
	def := protocol.Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters:  map[string]any{"type": "object"},
	}
	handler := func(_ context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	}
	return def, handler
}

func TestRegister_And_Execute(t *testing.T) {
	reg := tools.NewRegistry()
	def, handler := echoTool("echo")

	if err := reg.Register(def, handler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := reg.Execute(context.Background(), step.ToolCall{
		Name:      "echo",
		Arguments: map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result != `{"text":"hello"}` {
		t.Errorf("got %q", result)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := tools.NewRegistry()
	def, handler := echoTool("echo")

	if err := reg.Register(def, handler); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := reg.Register(def, handler); !errors.Is(err, tools.ErrAlreadyExists) {
		t.Errorf("got %v, want ErrAlreadyExists", err)
	}
}

func TestRegister_EmptyName(t *testing.T) {
	reg := tools.NewRegistry()

	err := reg.Register(protocol.Tool{}, nil)
	if !errors.Is(err, tools.ErrEmptyName) {
		t.Errorf("got %v, want ErrEmptyName", err)
	}
}

func TestReplace(t *testing.T) {
	reg := tools.NewRegistry()
	def, handler := echoTool("echo")

	if err := reg.Replace(def, handler); !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("replace before register: got %v, want ErrNotFound", err)
	}

	if err := reg.Register(def, handler); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	replaced := func(_ context.Context, _ json.RawMessage) (string, error) {
		return "replaced", nil
	}
	if err := reg.Replace(def, replaced); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	result, err := reg.Execute(context.Background(), step.ToolCall{Name: "echo"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result != "replaced" {
		t.Errorf("got %q, want replaced", result)
	}
}

func TestExecute_NotFound(t *testing.T) {
	reg := tools.NewRegistry()

	_, err := reg.Execute(context.Background(), step.ToolCall{Name: "missing"})
	if !errors.Is(err, tools.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestExecute_HandlerError(t *testing.T) {
	reg := tools.NewRegistry()
	def := protocol.Tool{Name: "broken", Parameters: map[string]any{"type": "object"}}

	if err := reg.Register(def, func(_ context.Context, _ json.RawMessage) (string, error) {
		return "", fmt.Errorf("backend unavailable")
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := reg.Execute(context.Background(), step.ToolCall{Name: "broken"})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestList_Sorted(t *testing.T) {
	reg := tools.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		def, handler := echoTool(name)
		if err := reg.Register(def, handler); err != nil {
			t.Fatalf("register %s failed: %v", name, err)
		}
	}

	defs := reg.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(defs) != len(want) {
		t.Fatalf("got %d tools, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("position %d: got %q, want %q", i, defs[i].Name, name)
		}
	}
}
