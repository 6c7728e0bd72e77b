package session

import (
	"time"

	"github.com/db-query-assistant/backend/internal/config"
	"github.com/db-query-assistant/backend/internal/metrics"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Manager keeps the live sessions in memory. Sessions idle for longer than
// the configured timeout are evicted; a zero timeout keeps them until the
// process exits.
type Manager struct {
	sessions *cache.Cache
	idle     time.Duration
	log      *zap.Logger
}

// NewManager creates a session registry from cfg.
func NewManager(cfg config.SessionConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	idle := cfg.IdleTimeout()
	expiration := cache.NoExpiration
	if idle > 0 {
		expiration = idle
	}

	m := &Manager{
		sessions: cache.New(expiration, cfg.CleanupInterval()),
		idle:     idle,
		log:      log.Named("session"),
	}
	m.sessions.OnEvicted(m.onEvicted)
	return m
}

// Create registers a new empty session.
func (m *Manager) Create() *State {
	st := newState()
	m.sessions.SetDefault(st.ID, st)
	metrics.ActiveSessions.Inc()

	m.log.Info("session created", zap.String("session_id", st.ID))
	return st
}

// Get returns a session and refreshes its idle deadline.
func (m *Manager) Get(id string) (*State, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	st := v.(*State)
	if m.idle > 0 {
		m.sessions.SetDefault(id, st)
	}
	return st, true
}

// Ensure returns the session for id, creating a new one when id is empty or
// unknown. created reports which happened.
func (m *Manager) Ensure(id string) (st *State, created bool) {
	if st, ok := m.Get(id); ok {
		return st, false
	}
	return m.Create(), true
}

// Delete removes a session and releases its model client.
func (m *Manager) Delete(id string) {
	m.sessions.Delete(id)
}

// Count returns the number of live sessions, including expired ones not yet
// swept.
func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

func (m *Manager) onEvicted(id string, v any) {
	metrics.ActiveSessions.Dec()

	st, ok := v.(*State)
	if !ok {
		return
	}
	if err := st.close(); err != nil {
		m.log.Warn("closing evicted session", zap.String("session_id", id), zap.Error(err))
		return
	}
	m.log.Info("session evicted", zap.String("session_id", id))
}
