// mock_model.go - Scripted model implementation for testing
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/db-query-assistant/backend/internal/config"
	"github.com/db-query-assistant/backend/internal/llm"
)

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.New("mock model: no scripted reply left")

// Reply is one scripted model response.
type Reply struct {
	Text string
	Err  error
}

// MockModel implements llm.Model by replaying scripted replies in order and
// recording every prompt it receives.
type MockModel struct {
	mu      sync.Mutex
	replies []Reply
	prompts []string
}

// NewMockModel creates a model that returns replies in order.
func NewMockModel(replies ...Reply) *MockModel {
	return &MockModel{replies: replies}
}

func (m *MockModel) Provider() string { return "mock" }
func (m *MockModel) Name() string     { return "mock-model" }

func (m *MockModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r.Text, r.Err
}

// Prompts returns every prompt received so far.
func (m *MockModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Calls returns how many times Generate ran.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// ModelFactory is a session.ModelFactory that always hands out model and
// records the keys it was asked to bind.
type ModelFactory struct {
	mu    sync.Mutex
	model llm.Model
	keys  []string
}

// NewModelFactory returns a factory handing out model.
func NewModelFactory(model llm.Model) *ModelFactory {
	return &ModelFactory{model: model}
}

// New matches session.ModelFactory.
func (f *ModelFactory) New(_ context.Context, _ config.LLMConfig, apiKey string) (llm.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, apiKey)
	return f.model, nil
}

// Keys returns the API keys seen by New.
func (f *ModelFactory) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}
