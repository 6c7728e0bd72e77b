// routes.go - Route registration helpers
package api

import (
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions *session.Manager
	Service  *session.Service
	Intake   *upload.Intake
	Version  string
	Provider string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    *HealthHandler
	Sessions  *Handler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := NewHandler(deps.Sessions, deps.Service, deps.Intake)
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions, deps.Provider),
		Sessions:  h,
		WebSocket: NewWebSocketHandler(h),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	sessions := apiGroup.Group("/sessions")
	sessions.POST("", handlers.Sessions.HandleCreateSession)
	sessions.GET("/:id", handlers.Sessions.HandleGetSession)
	sessions.DELETE("/:id", handlers.Sessions.HandleDeleteSession)
	sessions.POST("/:id/config", handlers.Sessions.HandleConfigure)
	sessions.POST("/:id/upload", handlers.Sessions.HandleUpload)
	sessions.GET("/:id/summary", handlers.Sessions.HandleGetSummary)
	sessions.GET("/:id/messages", handlers.Sessions.HandleGetMessages)
	sessions.POST("/:id/messages", handlers.Sessions.HandleAsk)
	sessions.GET("/:id/ws", handlers.WebSocket.HandleWebSocket)
}
