// Package cache wraps Redis operations that need fast access: rate limit
// counters, per-session resume locks, JWT blacklist and trip update pub/sub.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/klenoapp/kleno-server/internal/config"
)

// RedisCache wraps the Redis client with business-level operations.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ==================== Rate limiting ====================

// IncrResumeCount bumps the resume counter for a session within the window
// and returns the new count. Callers compare against the configured limit.
// INCR+EXPIRE in a pipeline: the first INCR creates the key, EXPIRE stamps
// the window so the counter resets.
func (c *RedisCache) IncrResumeCount(ctx context.Context, sessionID string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("trip:%s:resume_count", sessionID)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	// NX keeps the original window alive instead of sliding it on each call.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// ==================== Resume lock ====================
// A short per-session lock so concurrent resume calls for the same trip
// serialize at the cache layer before touching the database.

// AcquireResumeLock tries to take the per-session resume lock.
// Returns false when another request holds it.
func (c *RedisCache) AcquireResumeLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, fmt.Sprintf("trip:%s:lock", sessionID), "1", ttl).Result()
}

// ReleaseResumeLock releases the per-session resume lock.
func (c *RedisCache) ReleaseResumeLock(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, fmt.Sprintf("trip:%s:lock", sessionID)).Err()
}

// ==================== JWT blacklist ====================
// Forced token invalidation on logout.

// BlacklistToken adds a token hash to the blacklist until the token's own
// expiry, after which the key drops out on its own.
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Already expired, nothing to blacklist.
		return nil
	}
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a token hash is blacklisted.
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}

// ==================== Pub/Sub ====================
// Trip updates fan out through Redis so watchers connected to any server
// instance see breadcrumbs and alerts in real time.

// PublishTripUpdate publishes an update for a trip. The payload is
// JSON-serialized before publishing.
func (c *RedisCache) PublishTripUpdate(ctx context.Context, sessionID string, update interface{}) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, fmt.Sprintf("trip:updates:%s", sessionID), data).Err()
}

// SubscribeTripUpdates subscribes to a trip's update channel.
// The caller owns the returned PubSub and must close it.
func (c *RedisCache) SubscribeTripUpdates(ctx context.Context, sessionID string) *redis.PubSub {
	return c.client.Subscribe(ctx, fmt.Sprintf("trip:updates:%s", sessionID))
}
