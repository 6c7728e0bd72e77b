package llm

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/db-query-assistant/backend/internal/metrics"
	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// FallbackAnswer is appended to the transcript when the model call fails.
const FallbackAnswer = "I apologize, but I encountered an error processing your request. Please try rephrasing your question."

const questionLabel = "User question: "

// BuildPrompt composes the single prompt sent for every question.
func BuildPrompt(question, dbContext string) string {
	return "Context about the database:\n" +
		dbContext + "\n\n" +
		questionLabel + question + "\n\n" +
		"Please provide a clear and concise answer based on the database information above."
}

// Handler is a model bound to one API key. It is created once per session
// and never rebuilt.
type Handler struct {
	model   Model
	timeout time.Duration
}

// NewHandler wraps model. A zero timeout leaves the call bounded only by ctx.
func NewHandler(model Model, timeout time.Duration) *Handler {
	return &Handler{model: model, timeout: timeout}
}

// Model returns the bound model.
func (h *Handler) Model() Model { return h.model }

// Answer makes exactly one model call. On failure it returns FallbackAnswer
// together with a *models.ApiError describing the real cause.
func (h *Handler) Answer(ctx context.Context, question, dbContext string) (string, error) {
	log := logger.FromContext(ctx).With(
		zap.String("provider", h.model.Provider()),
		zap.String("model", h.model.Name()),
	)

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := h.model.Generate(ctx, BuildPrompt(question, dbContext))
	elapsed := time.Since(start)
	metrics.ObserveLLMCall(h.model.Provider(), h.model.Name(), err == nil, elapsed)

	if err != nil {
		log.Warn("model call failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return FallbackAnswer, &models.ApiError{
			Provider: h.model.Provider(),
			Model:    h.model.Name(),
			Err:      err,
		}
	}

	log.Info("model answered",
		zap.Int("prompt_context_bytes", len(dbContext)),
		zap.Int("answer_bytes", len(answer)),
		zap.Duration("elapsed", elapsed))
	return answer, nil
}

// Close releases the model's client if it holds one.
func (h *Handler) Close() error {
	if c, ok := h.model.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close %s client: %w", h.model.Provider(), err)
		}
	}
	return nil
}
