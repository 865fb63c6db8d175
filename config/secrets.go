package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Secrets are read from the environment, never from config files.
type Secrets struct {
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
}

// LoadSecrets reads API keys from the environment.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	return &s, nil
}

// ForProvider returns the API key for the named provider.
func (s *Secrets) ForProvider(name string) (string, error) {
	switch name {
	case ProviderOpenAI:
		if s.OpenAIAPIKey == "" {
			return "", fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return s.OpenAIAPIKey, nil
	case ProviderGemini:
		if s.GeminiAPIKey == "" {
			return "", fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return s.GeminiAPIKey, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", name)
	}
}
