package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/durable-agents/assistant/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Provider.Name != config.ProviderOpenAI {
		t.Errorf("default provider = %q", cfg.Provider.Name)
	}
	if cfg.Engine.MaxSteps <= 0 || cfg.Engine.RepeatThreshold <= 0 {
		t.Errorf("engine defaults not set: %+v", cfg.Engine)
	}
	if cfg.Durability.Store != config.StoreSQLite || cfg.Durability.Path == "" {
		t.Errorf("durability defaults not set: %+v", cfg.Durability)
	}
	if cfg.Gateway.Addr == "" {
		t.Error("gateway defaults not set")
	}
}

func TestMergeKeepsDefaultsForZeroValues(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Merge(&config.Config{
		Provider: config.ProviderConfig{Name: config.ProviderGemini},
		Engine:   config.EngineConfig{MaxSteps: 12},
	})

	if cfg.Provider.Name != config.ProviderGemini {
		t.Errorf("provider = %q, want merged value", cfg.Provider.Name)
	}
	if cfg.Provider.Model == "" {
		t.Error("model default was lost in merge")
	}
	if cfg.Engine.MaxSteps != 12 {
		t.Errorf("max steps = %d, want 12", cfg.Engine.MaxSteps)
	}
	if cfg.Engine.RepeatThreshold == 0 {
		t.Error("repeat threshold default was lost in merge")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"provider": {"name": "gemini", "model": "gemini-2.0-flash"},
		"durability": {"store": "memory"},
		"system_note": "Always answer in French."
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.Name != "gemini" || cfg.Provider.Model != "gemini-2.0-flash" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Durability.Store != config.StoreMemory {
		t.Errorf("store = %q", cfg.Durability.Store)
	}
	if cfg.SystemNote != "Always answer in French." {
		t.Errorf("system note = %q", cfg.SystemNote)
	}
	if cfg.Gateway.Addr == "" {
		t.Error("gateway default was lost")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSecretsForProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")

	secrets, err := config.LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}

	key, err := secrets.ForProvider(config.ProviderOpenAI)
	if err != nil || key != "sk-test" {
		t.Fatalf("ForProvider(openai) = %q, %v", key, err)
	}
	if _, err := secrets.ForProvider(config.ProviderGemini); err == nil {
		t.Fatal("expected error for unset gemini key")
	}
	if _, err := secrets.ForProvider("anthropic"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
