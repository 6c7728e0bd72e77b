package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaModel calls a local Ollama server. It needs no API key.
type OllamaModel struct {
	client *api.Client
	model  string
}

func NewOllamaModel(model, host string) (*OllamaModel, error) {
	if host == "" {
		host = defaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaModel{client: api.NewClient(u, http.DefaultClient), model: model}, nil
}

func (o *OllamaModel) Provider() string { return ProviderOllama }
func (o *OllamaModel) Name() string     { return o.model }

func (o *OllamaModel) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var text strings.Builder
	err := o.client.Generate(ctx, req, func(gr api.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text.String(), nil
}
