package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RejectCounter tracks consecutive rejected attempts per identity so the
// lockout policy survives kiosk restarts. An accept resets the count.
type RejectCounter interface {
	Incr(ctx context.Context, identityID string) (int, error)
	Reset(ctx context.Context, identityID string) error
}

// NopCounter disables lockout tracking (unlimited retries).
type NopCounter struct{}

func (NopCounter) Incr(context.Context, string) (int, error) { return 0, nil }
func (NopCounter) Reset(context.Context, string) error       { return nil }

// RedisCounter keeps a per-identity, per-day reject count in redis.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) key(identityID string) string {
	return fmt.Sprintf("verify:rejects:%s:%s", identityID, time.Now().Format("2006-01-02"))
}

// Incr bumps the count. The key expires after a day so a stale count never
// locks anyone out tomorrow.
func (c *RedisCounter) Incr(ctx context.Context, identityID string) (int, error) {
	key := c.key(identityID)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = c.client.Expire(ctx, key, 24*time.Hour).Err()
	}
	return int(n), nil
}

// Reset clears the count after a successful verification.
func (c *RedisCounter) Reset(ctx context.Context, identityID string) error {
	return c.client.Del(ctx, c.key(identityID)).Err()
}
