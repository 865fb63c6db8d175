package durable

import (
	"encoding/json"
	"fmt"
	"sync"
)

// RecordKind discriminates journal record variants.
type RecordKind string

const (
	// RecordSignal is an external signal receipt.
	RecordSignal RecordKind = "signal"
	// RecordActivity is a completed (or terminally failed) activity.
	RecordActivity RecordKind = "activity"
)

// Record is one entry of a session's append-only journal. Seq is assigned
// by the session and is contiguous from zero. For activity records Payload
// holds the result, or Error the terminal failure reason.
type Record struct {
	Seq     int             `json:"seq"`
	Kind    RecordKind      `json:"kind"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Failed  bool            `json:"failed,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Store persists session journals. Implementations must be safe for
// concurrent use across sessions; appends within one session are
// serialized by the session itself.
type Store interface {
	// Append adds a record to a session's journal. The append must be
	// atomic: a record is either fully present or absent after a crash.
	Append(sessionID string, rec Record) error

	// Load returns a session's journal ordered by Seq. A session with no
	// records yields an empty slice, not an error.
	Load(sessionID string) ([]Record, error)

	// Sessions returns the IDs of all sessions with journaled records.
	Sessions() ([]string, error)

	// Remove deletes a session's journal. No error if absent.
	Remove(sessionID string) error
}

// memoryStore implements Store with in-memory slices. Journals are lost
// when the process terminates. Suitable for tests, not for recovery.
type memoryStore struct {
	mu       sync.RWMutex
	journals map[string][]Record
}

// NewMemoryStore creates a Store backed by process memory. It is
// registered by default under the name "memory".
func NewMemoryStore() Store {
	return &memoryStore{journals: make(map[string][]Record)}
}

func (m *memoryStore) Append(sessionID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journals[sessionID] = append(m.journals[sessionID], rec)
	return nil
}

func (m *memoryStore) Load(sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.journals[sessionID]
	copied := make([]Record, len(records))
	copy(copied, records)
	return copied, nil
}

func (m *memoryStore) Sessions() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.journals))
	for id := range m.journals {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryStore) Remove(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.journals, sessionID)
	return nil
}

// stores is the global registry of named Store implementations. The
// "memory" store is registered by default; persistent backends are added
// at startup before any session launches.
var (
	stores = map[string]func() (Store, error){
		"memory": func() (Store, error) { return NewMemoryStore(), nil },
	}
	storesMu sync.RWMutex
)

// RegisterStore adds a named Store factory to the registry.
func RegisterStore(name string, factory func() (Store, error)) {
	storesMu.Lock()
	defer storesMu.Unlock()
	stores[name] = factory
}

// OpenStore constructs the Store registered under name.
func OpenStore(name string) (Store, error) {
	storesMu.RLock()
	factory, exists := stores[name]
	storesMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown journal store: %s", name)
	}
	return factory()
}
