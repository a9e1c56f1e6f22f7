package domain

import (
	"context"
	"time"
)

// AuthGateway resolves the authenticated caller for a request.
type AuthGateway interface {
	Identify(ctx context.Context) (Identity, error)
}

// PersistenceStore is the durable backend for sessions and messages.
// All calls are network-bound and may fail; the orchestrator and the
// offline queue own the failure handling.
type PersistenceStore interface {
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]Session, error)
	AppendMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	// CountUserMessagesSince counts role=user messages owned by ownerID
	// with timestamps at or after since. Authoritative source for quota
	// counting.
	CountUserMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error)
}

// Completion is the reply produced by the completion backend.
type Completion struct {
	ReplyText  string
	CrisisRisk float64 // 0..1
}

// CompletionService produces an assistant reply for the latest user
// message given bounded conversation context.
type CompletionService interface {
	Complete(ctx context.Context, context []ChatTurn, latest string, moodTag string) (*Completion, error)
}

// EntitlementService reports the current subscription standing of a user.
type EntitlementService interface {
	CurrentEntitlement(ctx context.Context, userID string) (*Entitlement, error)
}

// EscalationSink records crisis escalations. Failures are logged and
// swallowed by the caller; they must never affect message delivery.
type EscalationSink interface {
	RecordEscalation(ctx context.Context, e *Escalation) error
}
