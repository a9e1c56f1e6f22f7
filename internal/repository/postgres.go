package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/solace/internal/domain"
)

// PostgresStore implements domain.PersistenceStore and
// domain.EscalationSink on a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) CreateSession(ctx context.Context, s *domain.Session) error {
	// Upsert so an offline replay of an already-created session is a no-op.
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, owner_id, title, last_message_preview, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.OwnerID, s.Title, s.LastMessagePreview, s.MessageCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresStore) UpdateSession(ctx context.Context, s *domain.Session) error {
	// updated_at and message_count never move backwards, even if an
	// older queued update replays after a newer direct write.
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET title = $2,
		    last_message_preview = $3,
		    message_count = GREATEST(message_count, $4),
		    updated_at = GREATEST(updated_at, $5)
		WHERE id = $1`,
		s.ID, s.Title, s.LastMessagePreview, s.MessageCount, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, title, last_message_preview, message_count, created_at, updated_at
		FROM sessions WHERE id = $1`, sessionID)
	var s domain.Session
	err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.LastMessagePreview, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *PostgresStore) ListSessions(ctx context.Context, ownerID string) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, title, last_message_preview, message_count, created_at, updated_at
		FROM sessions WHERE owner_id = $1
		ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.LastMessagePreview, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *PostgresStore) AppendMessage(ctx context.Context, m *domain.Message) error {
	// Messages are immutable; replaying a queued append of an
	// already-persisted id is a no-op.
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content, mood_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.MoodTag, m.Timestamp)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, role, content, mood_tag, created_at
		FROM messages WHERE session_id = $1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.MoodTag, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = domain.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (r *PostgresStore) CountUserMessagesSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	row := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE s.owner_id = $1 AND m.role = 'user' AND m.created_at >= $2`,
		ownerID, since)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return count, nil
}

func (r *PostgresStore) RecordEscalation(ctx context.Context, e *domain.Escalation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO escalations (id, session_id, severity, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.SessionID, e.Severity, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("record escalation: %w", err)
	}
	return nil
}

// GetEntitlement returns the stored entitlement row for a user, or nil
// when none exists (the caller applies tier defaults).
func (r *PostgresStore) GetEntitlement(ctx context.Context, userID string) (*EntitlementRow, error) {
	row := r.db.QueryRow(ctx, `
		SELECT user_id, premium_until, trial_ends_at, daily_limit
		FROM entitlements WHERE user_id = $1`, userID)
	var e EntitlementRow
	err := row.Scan(&e.UserID, &e.PremiumUntil, &e.TrialEndsAt, &e.DailyLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	return &e, nil
}

// EntitlementRow mirrors the entitlements table.
type EntitlementRow struct {
	UserID       string
	PremiumUntil *time.Time
	TrialEndsAt  *time.Time
	DailyLimit   *int
}
