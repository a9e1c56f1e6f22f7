package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/domain"
)

// QueueStore is the durable local backing for queued operations.
type QueueStore interface {
	Insert(ctx context.Context, op *domain.QueuedOperation) error
	Due(ctx context.Context, now time.Time) ([]domain.QueuedOperation, error)
	Delete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time) error
	Len(ctx context.Context) (int, error)
}

// OfflineQueue holds writes that could not be confirmed as persisted and
// replays them against the store with at-least-once semantics. Each
// operation is retried individually during a drain so one failing
// operation never blocks the rest, and failed operations stay queued
// with capped exponential backoff. Retries are unbounded: losing a
// message is treated as worse than a stale retry.
type OfflineQueue struct {
	repo  QueueStore
	store domain.PersistenceStore
	now   func() time.Time

	trigger chan struct{}

	drainMu sync.Mutex // one drain at a time

	mu        sync.Mutex
	onDrained []func(processed int)
}

func NewOfflineQueue(repo QueueStore, store domain.PersistenceStore) *OfflineQueue {
	return &OfflineQueue{
		repo:    repo,
		store:   store,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Enqueue appends an operation for later replay. Idempotent by
// operation id.
func (q *OfflineQueue) Enqueue(ctx context.Context, op *domain.QueuedOperation) error {
	if op.NextAttemptAt.IsZero() {
		op.NextAttemptAt = op.EnqueuedAt
	}
	if err := q.repo.Insert(ctx, op); err != nil {
		return fmt.Errorf("enqueue operation: %w", err)
	}
	slog.Info("operation queued", "op_id", op.ID, "kind", op.Kind)
	return nil
}

// OnDrained registers a callback fired after a drain that confirmed at
// least one operation.
func (q *OfflineQueue) OnDrained(fn func(processed int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrained = append(q.onDrained, fn)
}

// TriggerDrain requests a drain from the Run loop without blocking.
// Wired to connectivity-restored and app-foreground signals.
func (q *OfflineQueue) TriggerDrain() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

// Run drains on demand and on a periodic timer until ctx is cancelled.
// The timer is a safety net against missed connectivity signals.
func (q *OfflineQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(config.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-q.trigger:
		}
		if _, err := q.Drain(ctx); err != nil {
			slog.Error("queue drain failed", "error", err)
		}
	}
}

// Drain replays due operations in enqueuedAt order. Successful
// operations are removed; failed ones stay queued with a bumped attempt
// count and backoff. Returns how many operations were confirmed.
func (q *OfflineQueue) Drain(ctx context.Context) (int, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	ops, err := q.repo.Due(ctx, q.now())
	if err != nil {
		return 0, fmt.Errorf("list due operations: %w", err)
	}

	processed := 0
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if err := q.attempt(ctx, &op); err != nil {
			attempts := op.Attempts + 1
			next := q.now().Add(backoffAfter(attempts))
			slog.Warn("queued operation failed",
				"op_id", op.ID,
				"kind", op.Kind,
				"attempts", attempts,
				"next_attempt", next,
				"error", err,
			)
			if mErr := q.repo.MarkFailed(ctx, op.ID, attempts, next); mErr != nil {
				slog.Error("mark operation failed", "op_id", op.ID, "error", mErr)
			}
			continue
		}
		if err := q.repo.Delete(ctx, op.ID); err != nil {
			// The write is confirmed; a leftover row just replays as a
			// no-op thanks to idempotent store writes.
			slog.Error("delete confirmed operation", "op_id", op.ID, "error", err)
		}
		processed++
	}

	if processed > 0 {
		slog.Info("queue drained", "processed", processed, "remaining", len(ops)-processed)
		q.mu.Lock()
		callbacks := append([]func(int){}, q.onDrained...)
		q.mu.Unlock()
		for _, fn := range callbacks {
			fn(processed)
		}
	}
	return processed, nil
}

// attempt replays one operation with a short in-drain retry before
// giving up until the next drain cycle.
func (q *OfflineQueue) attempt(ctx context.Context, op *domain.QueuedOperation) error {
	backoff := retry.WithMaxRetries(config.DrainOpRetries, retry.NewExponential(config.DrainRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := q.apply(ctx, op); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (q *OfflineQueue) apply(ctx context.Context, op *domain.QueuedOperation) error {
	ctx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()

	switch op.Kind {
	case domain.OpCreateSession:
		s, err := op.SessionPayload()
		if err != nil {
			return err
		}
		return q.store.CreateSession(ctx, s)
	case domain.OpUpdateSession:
		s, err := op.SessionPayload()
		if err != nil {
			return err
		}
		return q.store.UpdateSession(ctx, s)
	case domain.OpDeleteSession:
		s, err := op.SessionPayload()
		if err != nil {
			return err
		}
		return q.store.DeleteSession(ctx, s.ID)
	case domain.OpSendMessage:
		m, err := op.MessagePayload()
		if err != nil {
			return err
		}
		return q.store.AppendMessage(ctx, m)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// backoffAfter returns the capped exponential delay before the next
// attempt of an operation that has failed `attempts` times.
func backoffAfter(attempts int) time.Duration {
	d := config.QueueBackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= config.QueueBackoffCap {
			return config.QueueBackoffCap
		}
	}
	if d > config.QueueBackoffCap {
		d = config.QueueBackoffCap
	}
	return d
}
