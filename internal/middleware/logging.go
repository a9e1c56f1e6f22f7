package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// Logging returns middleware that logs request processing time.
func Logging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			userID := ""
			if ident, ok := Identity(c.Request().Context()); ok {
				userID = ident.UserID
			}

			slog.Debug("request processed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"user_id", userID,
				"duration", time.Since(start),
			)
			return err
		}
	}
}
