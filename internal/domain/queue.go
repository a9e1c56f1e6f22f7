package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpKind identifies what a queued operation replays against the store.
type OpKind string

const (
	OpCreateSession OpKind = "create_session"
	OpSendMessage   OpKind = "send_message"
	OpUpdateSession OpKind = "update_session"
	OpDeleteSession OpKind = "delete_session"
)

// QueuedOperation is one pending write that could not be confirmed as
// persisted. It stays queued until the replay is confirmed; Attempts and
// NextAttemptAt carry the retry/backoff state across drains.
type QueuedOperation struct {
	ID            string
	Kind          OpKind
	Payload       []byte
	EnqueuedAt    time.Time
	Attempts      int
	NextAttemptAt time.Time
}

// NewSessionOp builds a queued create/update/delete operation for a session.
// The operation id is deterministic per (kind, session, count) so a repeated
// enqueue of the same failed write stays idempotent.
func NewSessionOp(kind OpKind, s *Session, now time.Time) (*QueuedOperation, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return &QueuedOperation{
		ID:         fmt.Sprintf("%s:%s:%d", kind, s.ID, s.MessageCount),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: now,
	}, nil
}

// NewMessageOp builds a queued append operation for a message. The
// operation id reuses the message id, which is already unique.
func NewMessageOp(m *Message, now time.Time) (*QueuedOperation, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return &QueuedOperation{
		ID:         fmt.Sprintf("%s:%s", OpSendMessage, m.ID),
		Kind:       OpSendMessage,
		Payload:    payload,
		EnqueuedAt: now,
	}, nil
}

// SessionPayload decodes the operation payload as a Session.
func (op *QueuedOperation) SessionPayload() (*Session, error) {
	var s Session
	if err := json.Unmarshal(op.Payload, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session payload: %w", err)
	}
	return &s, nil
}

// MessagePayload decodes the operation payload as a Message.
func (op *QueuedOperation) MessagePayload() (*Message, error) {
	var m Message
	if err := json.Unmarshal(op.Payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal message payload: %w", err)
	}
	return &m, nil
}
