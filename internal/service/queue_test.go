package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/domain"
)

func testMessageOp(t *testing.T, sessionID, content string, at time.Time) *domain.QueuedOperation {
	t.Helper()
	op, err := domain.NewMessageOp(&domain.Message{
		ID:        "msg-" + content,
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
		Timestamp: at,
	}, at)
	require.NoError(t, err)
	return op
}

func TestEnqueueIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	session := domain.Session{ID: "s1", OwnerID: "u1", Title: "t"}
	require.NoError(t, store.CreateSession(ctx, &session))

	qstore := newMemQueueStore()
	q := NewOfflineQueue(qstore, store)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	op := testMessageOp(t, "s1", "hello", at)

	require.NoError(t, q.Enqueue(ctx, op))
	require.NoError(t, q.Enqueue(ctx, op))

	n, err := qstore.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	processed, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Exactly one persisted write.
	assert.Len(t, store.storedMessages("s1"), 1)
}

func TestDrainPartialProgress(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	// Session B exists; session A does not, so A's update fails.
	sessionB := domain.Session{ID: "b", OwnerID: "u1", Title: "b"}
	require.NoError(t, store.CreateSession(ctx, &sessionB))

	qstore := newMemQueueStore()
	q := NewOfflineQueue(qstore, store)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	drainAt := at.Add(time.Minute)
	q.now = func() time.Time { return drainAt }

	missing := domain.Session{ID: "a", OwnerID: "u1", Title: "a"}
	opA, err := domain.NewSessionOp(domain.OpUpdateSession, &missing, at)
	require.NoError(t, err)
	opB := testMessageOp(t, "b", "independent", at.Add(time.Second))

	require.NoError(t, q.Enqueue(ctx, opA))
	require.NoError(t, q.Enqueue(ctx, opB))

	processed, err := q.Drain(ctx)
	require.NoError(t, err)

	// A's failure does not block B.
	assert.Equal(t, 1, processed)
	assert.Len(t, store.storedMessages("b"), 1)

	// A stays queued with retry state for the next drain.
	ops, err := qstore.Due(ctx, at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, opA.ID, ops[0].ID)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.True(t, ops[0].NextAttemptAt.Equal(drainAt.Add(config.QueueBackoffBase)))
}

func TestDrainedCallbackFiresOnceWorkConfirmed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	session := domain.Session{ID: "s1", OwnerID: "u1", Title: "t"}
	require.NoError(t, store.CreateSession(ctx, &session))

	qstore := newMemQueueStore()
	q := NewOfflineQueue(qstore, store)

	fired := 0
	q.OnDrained(func(n int) { fired += n })

	// Empty drain: no callback.
	processed, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, fired)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, testMessageOp(t, "s1", "x", at)))

	processed, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, fired)
}

func TestBackoffAfterCapped(t *testing.T) {
	assert.Equal(t, config.QueueBackoffBase, backoffAfter(1))
	assert.Equal(t, 2*config.QueueBackoffBase, backoffAfter(2))
	assert.Equal(t, 4*config.QueueBackoffBase, backoffAfter(3))
	assert.Equal(t, config.QueueBackoffCap, backoffAfter(30))
}

func TestFailedOperationNotDueUntilBackoff(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failAll = true

	qstore := newMemQueueStore()
	q := NewOfflineQueue(qstore, store)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return at }

	require.NoError(t, q.Enqueue(ctx, testMessageOp(t, "s1", "x", at)))

	processed, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)

	// Not due again until the backoff elapses; retried, never discarded.
	ops, err := qstore.Due(ctx, at)
	require.NoError(t, err)
	assert.Empty(t, ops)

	ops, err = qstore.Due(ctx, at.Add(config.QueueBackoffBase))
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}
