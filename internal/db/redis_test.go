package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/clickguard/internal/models"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisStore{Client: client}, mr
}

func TestRedisStore_PassLock(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	token, err := store.AcquirePassLock(ctx, "t1", "a1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = store.AcquirePassLock(ctx, "t1", "a1", time.Minute)
	assert.ErrorIs(t, err, ErrPassInProgress)

	// a different account is independent
	_, err = store.AcquirePassLock(ctx, "t1", "a2", time.Minute)
	assert.NoError(t, err)

	// a stale token does not release someone else's lock
	require.NoError(t, store.ReleasePassLock(ctx, "t1", "a1", "not-the-owner"))
	assert.True(t, mr.Exists(lockKey("t1", "a1")))

	require.NoError(t, store.ReleasePassLock(ctx, "t1", "a1", token))
	assert.False(t, mr.Exists(lockKey("t1", "a1")))

	_, err = store.AcquirePassLock(ctx, "t1", "a1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisStore_PassLockExpires(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.AcquirePassLock(ctx, "t1", "a1", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.AcquirePassLock(ctx, "t1", "a1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisStore_RunStatus(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.RunStatus(ctx, "t1", "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRunStatus(ctx, models.RunStatus{
		RunID:        "run-1",
		TenantID:     "t1",
		AdsAccountID: "a1",
		State:        models.RunSucceeded,
		StartedAt:    finished.Add(-time.Second),
		FinishedAt:   &finished,
		AlertCount:   2,
		TotalCost:    "1.25",
	}))

	status, err := store.RunStatus(ctx, "t1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, models.RunSucceeded, status.State)
	assert.Equal(t, 2, status.AlertCount)
	assert.True(t, finished.Equal(*status.FinishedAt))
}

func TestRedisStore_Unavailable(t *testing.T) {
	var store *RedisStore
	_, err := store.AcquirePassLock(context.Background(), "t", "a", time.Second)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, store.Ping(context.Background()), ErrUnavailable)
}
