package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/set-night/solace/internal/domain"
)

func setupQueue(t *testing.T) *QueueRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	repo, err := OpenQueueDB(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func queuedOp(id string, at time.Time) *domain.QueuedOperation {
	return &domain.QueuedOperation{
		ID:            id,
		Kind:          domain.OpSendMessage,
		Payload:       []byte(`{"ID":"` + id + `"}`),
		EnqueuedAt:    at,
		NextAttemptAt: at,
	}
}

func TestInsertIdempotent(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	op := queuedOp("op-1", at)
	require.NoError(t, repo.Insert(ctx, op))
	require.NoError(t, repo.Insert(ctx, op))

	n, err := repo.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDueOrderAndEligibility(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Inserted out of order; Due must return enqueuedAt order.
	require.NoError(t, repo.Insert(ctx, queuedOp("op-b", at.Add(2*time.Second))))
	require.NoError(t, repo.Insert(ctx, queuedOp("op-a", at.Add(time.Second))))
	later := queuedOp("op-c", at)
	later.NextAttemptAt = at.Add(time.Hour)
	require.NoError(t, repo.Insert(ctx, later))

	ops, err := repo.Due(ctx, at.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "op-a", ops[0].ID)
	assert.Equal(t, "op-b", ops[1].ID)

	// Backed-off operation becomes due once its time arrives.
	ops, err = repo.Due(ctx, at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, ops, 3)
}

func TestDeleteAndMarkFailed(t *testing.T) {
	repo := setupQueue(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, queuedOp("op-1", at)))
	require.NoError(t, repo.Insert(ctx, queuedOp("op-2", at.Add(time.Second))))

	require.NoError(t, repo.MarkFailed(ctx, "op-1", 3, at.Add(time.Minute)))
	ops, err := repo.Due(ctx, at.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, 3, ops[0].Attempts)
	assert.Equal(t, at.Add(time.Minute).UnixMilli(), ops[0].NextAttemptAt.UnixMilli())

	require.NoError(t, repo.Delete(ctx, "op-1"))
	n, err := repo.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())

	repo, err := OpenQueueDB(ctx, dsn)
	require.NoError(t, err)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, queuedOp("op-1", at)))

	// Second open over the same database sees the queued row and the
	// schema bootstrap is a no-op.
	repo2, err := OpenQueueDB(ctx, dsn)
	require.NoError(t, err)
	defer repo2.Close()
	n, err := repo2.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Close())
}
