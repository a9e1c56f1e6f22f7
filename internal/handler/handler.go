// Package handler exposes the chat core over HTTP. The API is one
// possible transport; the orchestrator's contract is transport-agnostic.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/domain"
	"github.com/set-night/solace/internal/middleware"
	"github.com/set-night/solace/internal/service"
)

// Handler holds all dependencies needed by the HTTP endpoints.
type Handler struct {
	cfg          *config.Config
	orchestrator *service.Orchestrator
	queue        *service.OfflineQueue
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Cfg          *config.Config
	Orchestrator *service.Orchestrator
	Queue        *service.OfflineQueue
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		cfg:          deps.Cfg,
		orchestrator: deps.Orchestrator,
		queue:        deps.Queue,
	}
}

// Register wires all routes onto the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.Use(echomw.Recover())
	e.Use(middleware.Logging())

	e.GET("/healthz", h.handleHealth)
	e.POST("/api/v1/auth/guest", h.handleGuestToken)

	v1 := e.Group("/api/v1", middleware.Auth(h.cfg.JWTSecret))
	v1.POST("/auth/refresh", h.handleRefreshToken)
	v1.POST("/sessions", h.handleCreateSession)
	v1.GET("/sessions", h.handleListSessions)
	v1.DELETE("/sessions/:id", h.handleDeleteSession)
	v1.GET("/sessions/:id/messages", h.handleListMessages)
	v1.POST("/sessions/:id/messages", h.handleSendMessage)
	v1.POST("/signals/online", h.handleSignal)
	v1.POST("/signals/foreground", h.handleSignal)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleSignal maps connectivity-restored and app-foreground signals to
// a queue drain request.
func (h *Handler) handleSignal(c echo.Context) error {
	h.queue.TriggerDrain()
	return c.NoContent(http.StatusAccepted)
}

// httpError maps domain errors to HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrMessageTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotSessionOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAuthExpired), errors.Is(err, domain.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
