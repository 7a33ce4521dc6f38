package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/serendip/gatekeeper/internal/core/ports"
)

const throttlePrefix = "throttle:"

// Throttle grants one action per key per interval across every instance
// sharing the Redis server.
// Key format: throttle:<key>
type Throttle struct {
	client *redis.Client
}

var _ ports.Throttle = (*Throttle)(nil)

// NewThrottle creates a Throttle wrapping the given Redis client.
func NewThrottle(client *redis.Client) *Throttle {
	return &Throttle{client: client}
}

// Allow reports whether the action for key may proceed. The first caller in
// an interval claims the key; later callers are refused until it expires.
func (t *Throttle) Allow(ctx context.Context, key string, interval time.Duration) (bool, error) {
	if interval <= 0 {
		return true, nil
	}
	ok, err := t.client.SetNX(ctx, throttlePrefix+key, "1", interval).Result()
	if err != nil {
		return false, fmt.Errorf("throttle %s: %w", key, err)
	}
	return ok, nil
}
