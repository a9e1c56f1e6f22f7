package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/set-night/solace/internal/domain"
	_ "modernc.org/sqlite"
)

// QueueRepository persists not-yet-synced operations in a local SQLite
// database so queued writes survive process restarts.
type QueueRepository struct {
	db *sql.DB
}

// OpenQueueDB opens (and bootstraps) the local queue database at path.
// Use ":memory:" for tests.
func OpenQueueDB(ctx context.Context, path string) (*QueueRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS queued_operations (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  payload BLOB NOT NULL,
  enqueued_at INTEGER NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at INTEGER NOT NULL DEFAULT 0
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap queue schema: %w", err)
	}
	return &QueueRepository{db: db}, nil
}

func (r *QueueRepository) Close() error {
	return r.db.Close()
}

// Insert appends an operation. Calling it twice with the same id leaves
// exactly one row.
func (r *QueueRepository) Insert(ctx context.Context, op *domain.QueuedOperation) error {
	query := `INSERT INTO queued_operations (id, kind, payload, enqueued_at, attempts, next_attempt_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, string(op.Kind), op.Payload, op.EnqueuedAt.UnixMilli(), op.Attempts, op.NextAttemptAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert queued operation: %w", err)
	}
	return nil
}

// Due lists operations eligible for a drain attempt at now, oldest first.
func (r *QueueRepository) Due(ctx context.Context, now time.Time) ([]domain.QueuedOperation, error) {
	query := `SELECT id, kind, payload, enqueued_at, attempts, next_attempt_at
			FROM queued_operations
			WHERE next_attempt_at <= ?
			ORDER BY enqueued_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("select due operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.QueuedOperation
	for rows.Next() {
		var op domain.QueuedOperation
		var kind string
		var enqueuedAt, nextAttemptAt int64
		if err := rows.Scan(&op.ID, &kind, &op.Payload, &enqueuedAt, &op.Attempts, &nextAttemptAt); err != nil {
			return nil, fmt.Errorf("scan queued operation: %w", err)
		}
		op.Kind = domain.OpKind(kind)
		op.EnqueuedAt = time.UnixMilli(enqueuedAt)
		op.NextAttemptAt = time.UnixMilli(nextAttemptAt)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select due operations: %w", err)
	}
	return ops, nil
}

// Delete removes a confirmed operation.
func (r *QueueRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM queued_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete queued operation: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt count and schedules the next try.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time) error {
	query := `UPDATE queued_operations SET attempts = ?, next_attempt_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, attempts, nextAttemptAt.UnixMilli(), id); err != nil {
		return fmt.Errorf("mark operation failed: %w", err)
	}
	return nil
}

// Len reports the number of queued operations.
func (r *QueueRepository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM queued_operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queued operations: %w", err)
	}
	return n, nil
}
