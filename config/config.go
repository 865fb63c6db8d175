// Package config holds initialization parameters for the assistant
// service. File-based settings are JSON merged over defaults; secrets
// come from the environment only.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/durable-agents/assistant/engine"
)

// Provider names accepted in ProviderConfig.Name.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Store names accepted in DurabilityConfig.Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// ProviderConfig selects and tunes the model backend.
type ProviderConfig struct {
	Name    string `json:"name,omitempty"`
	Model   string `json:"model,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// DurabilityConfig selects the journal store.
type DurabilityConfig struct {
	Store string `json:"store,omitempty"`
	// Path is the SQLite database file. Ignored by the memory store.
	Path string `json:"path,omitempty"`
	// ActivityTimeoutSeconds bounds each activity attempt.
	ActivityTimeoutSeconds int `json:"activity_timeout_seconds,omitempty"`
	// MaxAttempts bounds activity retries.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// GatewayConfig tunes the RPC listener.
type GatewayConfig struct {
	Addr string `json:"addr,omitempty"`
}

// EngineConfig mirrors engine.Config for JSON loading.
type EngineConfig struct {
	MaxSteps        int      `json:"max_steps,omitempty"`
	RepeatThreshold int      `json:"repeat_threshold,omitempty"`
	FinalMarkers    []string `json:"final_markers,omitempty"`
}

// Config holds initialization parameters for all subsystems.
type Config struct {
	Provider   ProviderConfig   `json:"provider"`
	Engine     EngineConfig     `json:"engine"`
	Durability DurabilityConfig `json:"durability"`
	Gateway    GatewayConfig    `json:"gateway"`
	// SystemNote is appended to every session's system prompt.
	SystemNote string `json:"system_note,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all
// subsystems.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Name:  ProviderOpenAI,
			Model: "gpt-4o",
		},
		Engine: EngineConfig{
			MaxSteps:        engine.DefaultMaxSteps,
			RepeatThreshold: engine.DefaultRepeatThreshold,
		},
		Durability: DurabilityConfig{
			Store: StoreSQLite,
			Path:  "assistant.db",
		},
		Gateway: GatewayConfig{
			Addr: "localhost:8089",
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider.Name != "" {
		c.Provider.Name = source.Provider.Name
	}
	if source.Provider.Model != "" {
		c.Provider.Model = source.Provider.Model
	}
	if source.Provider.BaseURL != "" {
		c.Provider.BaseURL = source.Provider.BaseURL
	}

	if source.Engine.MaxSteps > 0 {
		c.Engine.MaxSteps = source.Engine.MaxSteps
	}
	if source.Engine.RepeatThreshold > 0 {
		c.Engine.RepeatThreshold = source.Engine.RepeatThreshold
	}
	if len(source.Engine.FinalMarkers) > 0 {
		c.Engine.FinalMarkers = source.Engine.FinalMarkers
	}

	if source.Durability.Store != "" {
		c.Durability.Store = source.Durability.Store
	}
	if source.Durability.Path != "" {
		c.Durability.Path = source.Durability.Path
	}
	if source.Durability.ActivityTimeoutSeconds > 0 {
		c.Durability.ActivityTimeoutSeconds = source.Durability.ActivityTimeoutSeconds
	}
	if source.Durability.MaxAttempts > 0 {
		c.Durability.MaxAttempts = source.Durability.MaxAttempts
	}

	if source.Gateway.Addr != "" {
		c.Gateway.Addr = source.Gateway.Addr
	}
	if source.SystemNote != "" {
		c.SystemNote = source.SystemNote
	}
}

// EngineSettings converts the loaded engine section into the engine's
// own config type.
func (c *Config) EngineSettings() engine.Config {
	return engine.Config{
		MaxSteps:        c.Engine.MaxSteps,
		RepeatThreshold: c.Engine.RepeatThreshold,
		FinalMarkers:    c.Engine.FinalMarkers,
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and
// returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
