// Package history holds the ordered, append-only conversation log a session
// owns. Entries are typed by kind and never mutated, reordered, or removed
// once appended; corrections happen by appending new entries. Rendering the
// log into provider messages is a pure function of its current contents, so
// it can run on every step without observing anything but the log itself.
package history

import (
	"fmt"
	"sync"

	"github.com/durable-agents/assistant/core/protocol"
)

// Kind discriminates the entry variants of the conversation log.
type Kind string

const (
	KindSystem Kind = "system"
	KindTask   Kind = "task"
	KindUser   Kind = "user"
	KindTool   Kind = "tool"
	KindModel  Kind = "model"
)

// Entry is one record of the conversation log. ToolName is set only for
// KindTool entries and names the tool that produced the content.
type Entry struct {
	Kind     Kind   `json:"kind"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`
}

// System creates a system-instruction entry.
func System(text string) Entry { return Entry{Kind: KindSystem, Content: text} }

// Task creates a task-framing entry. Tasks render as user messages but are
// kept distinct in the log so seeding prompts stay identifiable.
func Task(text string) Entry { return Entry{Kind: KindTask, Content: text} }

// User creates a user-message entry.
func User(text string) Entry { return Entry{Kind: KindUser, Content: text} }

// Model creates an assistant-output entry.
func Model(text string) Entry { return Entry{Kind: KindModel, Content: text} }

// ToolOutput creates an attributed tool-result entry.
func ToolOutput(tool, text string) Entry {
	return Entry{Kind: KindTool, Content: text, ToolName: tool}
}

// History is an append-only sequence of entries. Appends happen only on the
// session's own control flow; reads may come from query handlers, so access
// is guarded.
type History struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty History.
func New() *History {
	return &History{}
}

// Append adds an entry to the end of the log.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a defensive copy of the log.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	copied := make([]Entry, len(h.entries))
	copy(copied, h.entries)
	return copied
}

// Render produces the provider message list for the full entry sequence.
// Tool entries render as attributed user messages ("[Tool <name> output]: …")
// so every backend sees tool results the same way regardless of whether it
// supports a native tool role. No entry is reordered or dropped.
func (h *History) Render() []protocol.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	messages := make([]protocol.Message, 0, len(h.entries))
	for _, e := range h.entries {
		switch e.Kind {
		case KindSystem:
			messages = append(messages, protocol.NewMessage(protocol.RoleSystem, e.Content))
		case KindTask, KindUser:
			messages = append(messages, protocol.NewMessage(protocol.RoleUser, e.Content))
		case KindTool:
			content := fmt.Sprintf("[Tool %s output]: %s", e.ToolName, e.Content)
			messages = append(messages, protocol.NewMessage(protocol.RoleUser, content))
		case KindModel:
			messages = append(messages, protocol.NewMessage(protocol.RoleAssistant, e.Content))
		}
	}
	return messages
}
