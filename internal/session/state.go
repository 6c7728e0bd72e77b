package session

import (
	"sync"
	"time"

	"github.com/db-query-assistant/backend/internal/llm"
	"github.com/db-query-assistant/backend/internal/models"
	"github.com/google/uuid"
)

// State is everything one browser session accumulates: the model handler,
// the current database summary and the chat transcript. It only moves from
// empty to populated; nothing resets it short of eviction or restart.
type State struct {
	ID        string
	CreatedAt time.Time

	// mu serializes interaction cycles of this session.
	mu      sync.Mutex
	history []models.ChatMessage
	summary *models.DatabaseSummary
	handler *llm.Handler
}

func newState() *State {
	return &State{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		history:   []models.ChatMessage{},
	}
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID         string                  `json:"id"`
	CreatedAt  time.Time               `json:"createdAt"`
	Configured bool                    `json:"configured"`
	Provider   string                  `json:"provider,omitempty"`
	Model      string                  `json:"model,omitempty"`
	Summary    *models.DatabaseSummary `json:"summary,omitempty"`
	Messages   []models.ChatMessage    `json:"messages"`
}

// Snapshot copies the session under its lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		Configured: s.handler != nil,
		Messages:   append([]models.ChatMessage(nil), s.history...),
	}
	if snap.Messages == nil {
		snap.Messages = []models.ChatMessage{}
	}
	if s.handler != nil {
		snap.Provider = s.handler.Model().Provider()
		snap.Model = s.handler.Model().Name()
	}
	if s.summary != nil {
		sum := *s.summary
		snap.Summary = &sum
	}
	return snap
}

// History returns a copy of the transcript.
func (s *State) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage{}, s.history...)
}

// Summary returns the current summary, or nil before the first successful upload.
func (s *State) Summary() *models.DatabaseSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return nil
	}
	sum := *s.summary
	return &sum
}

// Configured reports whether a model handler has been bound.
func (s *State) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

func (s *State) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil
	}
	return s.handler.Close()
}
