package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/set-night/solace/internal/domain"
	"github.com/set-night/solace/internal/service"
)

// MessageResponse is the wire form of one message.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MoodTag   string    `json:"mood_tag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func messageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		MoodTag:   m.MoodTag,
		Timestamp: m.Timestamp,
	}
}

// SendMessageRequest is the request body for POST /sessions/:id/messages.
type SendMessageRequest struct {
	Text    string `json:"text"`
	MoodTag string `json:"mood_tag"`
}

// SendMessageResponse reports the outcome of a send.
type SendMessageResponse struct {
	Status         string           `json:"status"`
	AssistantText  string           `json:"assistant_text,omitempty"`
	Fallback       bool             `json:"fallback,omitempty"`
	PromptKind     string           `json:"prompt_kind,omitempty"`
	RequiresReauth bool             `json:"requires_reauth,omitempty"`
	UserMessage    *MessageResponse `json:"user_message,omitempty"`
	Assistant      *MessageResponse `json:"assistant_message,omitempty"`
}

func (h *Handler) handleSendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.orchestrator.SendMessage(c.Request().Context(), c.Param("id"), req.Text, req.MoodTag)
	if err != nil {
		return httpError(err)
	}

	resp := SendMessageResponse{
		Status:         string(res.Status),
		AssistantText:  res.AssistantText,
		Fallback:       res.Fallback,
		PromptKind:     string(res.PromptKind),
		RequiresReauth: res.RequiresReauth,
	}
	if res.UserMessage != nil {
		m := messageResponse(res.UserMessage)
		resp.UserMessage = &m
	}
	if res.AssistantMessage != nil {
		m := messageResponse(res.AssistantMessage)
		resp.Assistant = &m
	}

	status := http.StatusOK
	switch res.Status {
	case service.SendQueued:
		status = http.StatusAccepted
	case service.SendDenied:
		status = http.StatusForbidden
	}
	return c.JSON(status, resp)
}

func (h *Handler) handleListMessages(c echo.Context) error {
	msgs, err := h.orchestrator.Messages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	resp := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		resp = append(resp, messageResponse(&msgs[i]))
	}
	return c.JSON(http.StatusOK, resp)
}
