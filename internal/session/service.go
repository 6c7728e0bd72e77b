package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/db-query-assistant/backend/internal/config"
	"github.com/db-query-assistant/backend/internal/llm"
	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/parser"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrEmptyQuestion is returned for a blank chat input.
var ErrEmptyQuestion = errors.New("question is empty")

// ModelFactory builds a model bound to an API key.
type ModelFactory func(ctx context.Context, cfg config.LLMConfig, apiKey string) (llm.Model, error)

// Service runs the configure, upload and ask steps of an interaction cycle
// against a session. Each step holds the session lock for its duration.
type Service struct {
	registry *parser.Registry
	llmCfg   config.LLMConfig
	newModel ModelFactory
}

// Option customizes a Service.
type Option func(*Service)

// WithModelFactory replaces the provider constructor, mainly for tests.
func WithModelFactory(f ModelFactory) Option {
	return func(s *Service) { s.newModel = f }
}

// NewService creates a Service that interprets uploads with registry and
// calls the model described by llmCfg.
func NewService(registry *parser.Registry, llmCfg config.LLMConfig, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		llmCfg:   llmCfg,
		newModel: llm.NewModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure binds apiKey to the session's model handler. The handler is
// created at most once; later keys are ignored. An empty key does nothing.
// It reports whether a new handler was created.
func (s *Service) Configure(ctx context.Context, st *State, apiKey string) (bool, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return false, nil
	}
	ctx = withSession(ctx, st, "configure")

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handler != nil {
		return false, nil
	}

	model, err := s.newModel(ctx, s.llmCfg, apiKey)
	if err != nil {
		provider, name := llm.Resolve(s.llmCfg)
		return false, &models.ApiError{Provider: provider, Model: name, Err: err}
	}
	st.handler = llm.NewHandler(model, s.llmCfg.RequestTimeout())

	logger.FromContext(ctx).Info("model handler configured",
		zap.String("provider", model.Provider()),
		zap.String("model", model.Name()))
	return true, nil
}

// Upload interprets file and stores its summary. The upload is refused until
// a key is configured. A parse failure leaves the previous summary in place.
// An empty interpretation is not stored and yields a nil summary.
func (s *Service) Upload(ctx context.Context, st *State, file *models.UploadedFile) (*models.DatabaseSummary, error) {
	ctx = withSession(ctx, st, "upload")

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handler == nil {
		return nil, models.ErrMissingAPIKey
	}

	text, format, err := s.registry.Interpret(ctx, file)
	if err != nil {
		return nil, err
	}
	if text == "" {
		logger.FromContext(ctx).Info("empty summary not stored", zap.String("file", file.Name))
		return nil, nil
	}

	summary := &models.DatabaseSummary{
		Text:       text,
		SourceName: file.Name,
		Format:     format,
		LoadedAt:   time.Now(),
	}
	st.summary = summary

	out := *summary
	return &out, nil
}

// Ask checks the key and then the summary, appends the question, calls the
// model once and appends its answer. Failed preconditions change nothing.
// A failed model call still appends llm.FallbackAnswer and returns the
// *models.ApiError alongside it.
func (s *Service) Ask(ctx context.Context, st *State, question string) (models.ChatMessage, error) {
	if strings.TrimSpace(question) == "" {
		return models.ChatMessage{}, ErrEmptyQuestion
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.handler == nil {
		return models.ChatMessage{}, models.ErrMissingAPIKey
	}
	if st.summary == nil {
		return models.ChatMessage{}, models.ErrMissingSummary
	}

	ctx = withSession(ctx, st, "ask")
	st.history = append(st.history, models.NewChatMessage(models.RoleUser, question))

	answer, apiErr := st.handler.Answer(ctx, question, st.summary.Text)
	reply := models.NewChatMessage(models.RoleAssistant, answer)
	st.history = append(st.history, reply)

	return reply, apiErr
}

// withSession tags the context logger with the session and the flow step, so
// the interpreter and model client log under them too.
func withSession(ctx context.Context, st *State, action string) context.Context {
	ctx = logger.AddFields(ctx, zap.String("session_id", st.ID))
	return logger.WithAction(ctx, action)
}
