// Package tools provides the name-keyed dispatch table for tool
// implementations. The registry is built at startup and injected into the
// runtime; after that it is read-only and shared across all sessions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/durable-agents/assistant/core/protocol"
	"github.com/durable-agents/assistant/step"
)

// Handler is the function signature for tool implementations. Handlers
// receive JSON-encoded arguments and return the plain-text result that
// feeds back into the conversation.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

type entry struct {
	tool    protocol.Tool
	handler Handler
}

// Registry maps tool names to definitions and handlers. Thread-safe; in
// practice all registration happens before the first Execute.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a new tool. Returns ErrAlreadyExists if the name is taken;
// use Replace to update an existing tool.
func (r *Registry) Register(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Replace updates an existing tool's definition and handler.
// Returns ErrNotFound if no tool with the given name is registered.
func (r *Registry) Replace(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Get retrieves a handler by tool name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// List returns the definitions of all registered tools, sorted by name.
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]protocol.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.tool)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute dispatches a model-requested tool call to the registered handler.
// The structured argument payload is re-encoded as JSON for the handler to
// decode into its expected form. Returns ErrNotFound for unknown names;
// handler errors are wrapped with the tool name.
func (r *Registry) Execute(ctx context.Context, call step.ToolCall) (string, error) {
	r.mu.RLock()
	e, exists := r.entries[call.Name]
	r.mu.RUnlock()

	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, call.Name)
	}

	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrBadArguments, call.Name, err)
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("tool %s execution failed: %w", call.Name, err)
	}
	return result, nil
}
