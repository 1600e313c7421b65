package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/models"
)

// ErrPassInProgress is returned when another fraud pass holds the account lock.
var ErrPassInProgress = errors.New("fraud pass already in progress")

// runStatusTTL bounds how long the last run status is kept.
const runStatusTTL = 7 * 24 * time.Hour

// releaseScript deletes the lock only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStore wraps a redis client used for pass locks and run status.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{Client: redis.NewClient(&redis.Options{Addr: addr})}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func lockKey(tenantID, accountID string) string {
	return fmt.Sprintf("fraudpass:lock:%s:%s", tenantID, accountID)
}

func statusKey(tenantID, accountID string) string {
	return fmt.Sprintf("fraudpass:status:%s:%s", tenantID, accountID)
}

// AcquirePassLock takes the per-account pass lock for ttl. It returns a
// token for ReleasePassLock, or ErrPassInProgress if the lock is held.
func (r *RedisStore) AcquirePassLock(ctx context.Context, tenantID, accountID string, ttl time.Duration) (string, error) {
	if r == nil || r.Client == nil {
		return "", ErrUnavailable
	}
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey(tenantID, accountID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire pass lock: %w", err)
	}
	if !ok {
		return "", ErrPassInProgress
	}
	return token, nil
}

// ReleasePassLock releases the lock if token still owns it.
func (r *RedisStore) ReleasePassLock(ctx context.Context, tenantID, accountID, token string) error {
	if r == nil || r.Client == nil {
		return ErrUnavailable
	}
	if err := releaseScript.Run(ctx, r.Client, []string{lockKey(tenantID, accountID)}, token).Err(); err != nil {
		return fmt.Errorf("release pass lock: %w", err)
	}
	return nil
}

// SaveRunStatus stores the latest run status for the account.
func (r *RedisStore) SaveRunStatus(ctx context.Context, status models.RunStatus) error {
	if r == nil || r.Client == nil {
		return ErrUnavailable
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal run status: %w", err)
	}
	if err := r.Client.Set(ctx, statusKey(status.TenantID, status.AdsAccountID), raw, runStatusTTL).Err(); err != nil {
		return fmt.Errorf("save run status: %w", err)
	}
	return nil
}

// RunStatus returns the latest run status for the account or ErrNotFound.
func (r *RedisStore) RunStatus(ctx context.Context, tenantID, accountID string) (*models.RunStatus, error) {
	if r == nil || r.Client == nil {
		return nil, ErrUnavailable
	}
	raw, err := r.Client.Get(ctx, statusKey(tenantID, accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run status: %w", err)
	}
	var status models.RunStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode run status: %w", err)
	}
	return &status, nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return ErrUnavailable
	}
	return r.Client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
