package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterModel reaches OpenRouter through langchaingo's OpenAI-compatible
// client.
type OpenRouterModel struct {
	llm   llms.Model
	model string
}

func NewOpenRouterModel(apiKey, model, baseURL string) (*OpenRouterModel, error) {
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("openrouter init: %w", err)
	}
	return &OpenRouterModel{llm: client, model: model}, nil
}

func (o *OpenRouterModel) Provider() string { return ProviderOpenRouter }
func (o *OpenRouterModel) Name() string     { return o.model }

func (o *OpenRouterModel) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o.llm, prompt)
}
