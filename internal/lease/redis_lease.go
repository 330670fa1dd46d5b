// internal/lease/redis_lease.go
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pos-sync-service/internal/config"
)

// refreshScript extends the lease only while the caller still owns it
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease shares sync ownership between terminals through Redis
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	logger *zap.Logger
}

// NewRedisClient opens the Redis connection used for leases
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
}

// NewRedisLease creates a holder for key with a fresh owner token
func NewRedisLease(client *redis.Client, key string, logger *zap.Logger) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
		logger: logger.With(zap.String("lease_key", key)),
	}
}

// Acquire sets the key when free, otherwise refreshes it if we own it
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		l.logger.Debug("Sync lease acquired")
		return true, nil
	}

	refreshed, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to refresh lease: %w", err)
	}
	return refreshed == 1, nil
}

// Release deletes the key if we still own it
func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Owner returns the token identifying this holder
func (l *RedisLease) Owner() string {
	return l.owner
}

// Ping checks the Redis connection
func (l *RedisLease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
