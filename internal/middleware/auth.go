package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/set-night/solace/internal/domain"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Claims is the JWT payload carried by client tokens. Guest tokens are
// minted without signup; their subject is a device-scoped id.
type Claims struct {
	Guest bool `json:"guest"`
	jwt.RegisteredClaims
}

// Identity extracts the authenticated identity from context.
func Identity(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(domain.Identity)
	return ident, ok
}

// WithIdentity returns a context carrying the given identity. Used by
// the auth middleware and by tests.
func WithIdentity(ctx context.Context, ident domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// Auth returns middleware that validates the Bearer token and loads the
// caller's identity into the request context. Expired tokens map to 401
// with an "expired" hint so clients know to re-authenticate.
func Auth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			ident, err := ParseToken(secret, token)
			if err != nil {
				if errors.Is(err, domain.ErrAuthExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := WithIdentity(c.Request().Context(), ident)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// ParseToken validates a signed token and returns the identity it carries.
func ParseToken(secret, token string) (domain.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, domain.ErrAuthExpired
		}
		return domain.Identity{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Identity{}, errors.New("invalid token claims")
	}
	return domain.Identity{UserID: claims.Subject, Guest: claims.Guest, Token: token}, nil
}

// IssueToken mints a signed token for a user or guest identity.
func IssueToken(secret, userID string, guest bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Guest: guest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Gateway implements domain.AuthGateway on the request context
// populated by the Auth middleware.
type Gateway struct{}

func (Gateway) Identify(ctx context.Context) (domain.Identity, error) {
	ident, ok := Identity(ctx)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return ident, nil
}
