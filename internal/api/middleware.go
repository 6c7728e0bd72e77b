package api

import (
	"time"

	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger places a request-scoped zap logger in the request context and
// logs each completed request unless skip returns true.
func RequestLogger(base *zap.Logger, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			log := base.With(
				zap.String("request_id", requestID),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
			)
			c.SetRequest(req.WithContext(logger.ToContext(req.Context(), log)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			if skip == nil || !skip(c) {
				log.Info("request",
					zap.String("route", c.Path()),
					zap.Int("status", c.Response().Status),
					zap.Int64("bytes", c.Response().Size),
					zap.Duration("latency", time.Since(start)),
					zap.String("remote_ip", c.RealIP()))
			}
			return nil
		}
	}
}
