// Package llm binds an API key to a hosted model and answers questions
// about the uploaded database.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/db-query-assistant/backend/internal/config"
)

// Provider names accepted in llm.provider.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderDummy      = "dummy"
)

// Model is one configured text-generation backend.
type Model interface {
	Provider() string
	Name() string
	// Generate sends a single prompt and returns the model's text.
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewModel builds the configured provider's client bound to apiKey.
func NewModel(ctx context.Context, cfg config.LLMConfig, apiKey string) (Model, error) {
	provider, model := Resolve(cfg)

	switch provider {
	case ProviderGemini:
		return NewGeminiModel(ctx, apiKey, model)
	case ProviderOpenAI:
		return NewOpenAIModel(apiKey, model, cfg.BaseURL), nil
	case ProviderAnthropic:
		return NewAnthropicModel(apiKey, model, cfg.MaxTokens), nil
	case ProviderOllama:
		return NewOllamaModel(model, cfg.BaseURL)
	case ProviderOpenRouter:
		return NewOpenRouterModel(apiKey, model, cfg.BaseURL)
	case ProviderDummy:
		return NewDummyModel(""), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// Resolve returns the provider and model a config selects, filling in the
// provider's default model when llm.model is empty.
func Resolve(cfg config.LLMConfig) (provider, model string) {
	provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	model = strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel(provider)
	}
	return provider, model
}

// DefaultModel returns the model used when llm.model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return "gemini-pro"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderOllama:
		return "llama3"
	case ProviderOpenRouter:
		return "openai/gpt-4o-mini"
	default:
		return "dummy"
	}
}
