// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/db-query-assistant/backend/internal/session"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports liveness and a few runtime facts.
type HealthHandler struct {
	version  string
	sessions *session.Manager
	provider string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions *session.Manager, provider string) *HealthHandler {
	return &HealthHandler{
		version:  version,
		sessions: sessions,
		provider: provider,
	}
}

// HandleHealth returns server health status
func (h *HealthHandler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"provider": h.provider,
		"sessions": h.sessions.Count(),
	})
}
