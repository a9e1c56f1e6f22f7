package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotSessionOwner  = errors.New("not the session owner")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrMessageTooLong   = errors.New("message text exceeds maximum length")
	ErrDailyLimit       = errors.New("daily message limit reached")
	ErrAuthExpired      = errors.New("auth token expired")
	ErrUnauthenticated  = errors.New("no authenticated identity")
	ErrStoreUnavailable = errors.New("persistence store unavailable")
)
