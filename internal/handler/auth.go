package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/middleware"
)

// TokenResponse carries a freshly minted credential.
type TokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// handleGuestToken mints a guest identity without signup. Guests get
// the guest-tier daily quota until they register.
func (h *Handler) handleGuestToken(c echo.Context) error {
	userID := "guest-" + uuid.NewString()
	token, err := middleware.IssueToken(h.cfg.JWTSecret, userID, true, config.GuestTokenTTL)
	if err != nil {
		slog.Error("issue guest token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token, UserID: userID})
}

// handleRefreshToken re-mints the caller's token with a fresh lifetime.
// Clients call this when a send reports it needs re-authentication.
func (h *Handler) handleRefreshToken(c echo.Context) error {
	ident, ok := middleware.Identity(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated identity")
	}
	ttl := config.UserTokenTTL
	if ident.Guest {
		ttl = config.GuestTokenTTL
	}
	token, err := middleware.IssueToken(h.cfg.JWTSecret, ident.UserID, ident.Guest, ttl)
	if err != nil {
		slog.Error("refresh token", "user_id", ident.UserID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token, UserID: ident.UserID})
}
