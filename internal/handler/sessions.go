package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/set-night/solace/internal/domain"
)

// SessionResponse is the wire form of a session.
type SessionResponse struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview"`
	MessageCount       int       `json:"message_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Queued             bool      `json:"queued,omitempty"`
}

func sessionResponse(s *domain.Session, queued bool) SessionResponse {
	return SessionResponse{
		ID:                 s.ID,
		Title:              s.Title,
		LastMessagePreview: s.LastMessagePreview,
		MessageCount:       s.MessageCount,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		Queued:             queued,
	}
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

func (h *Handler) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	session, queued, err := h.orchestrator.StartSession(c.Request().Context(), req.Title)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sessionResponse(session, queued))
}

func (h *Handler) handleListSessions(c echo.Context) error {
	sessions, err := h.orchestrator.Sessions(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	resp := make([]SessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, sessionResponse(&sessions[i], false))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleDeleteSession(c echo.Context) error {
	queued, err := h.orchestrator.DeleteSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if queued {
		return c.NoContent(http.StatusAccepted)
	}
	return c.NoContent(http.StatusNoContent)
}
