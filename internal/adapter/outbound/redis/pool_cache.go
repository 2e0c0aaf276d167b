package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/preset/credits/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const (
	poolAvailableKeyPrefix = "pool:available:"

	// poolEstimateTTL bounds staleness when the reconciler stops
	// refreshing the key.
	poolEstimateTTL = 30 * time.Minute
)

// poolEstimateCache implements outbound.PoolEstimateCache.
type poolEstimateCache struct {
	client *redis.Client
}

// NewPoolEstimateCache creates a new pool estimate cache adapter.
func NewPoolEstimateCache(client *redis.Client) outbound.PoolEstimateCache {
	return &poolEstimateCache{client: client}
}

func (c *poolEstimateCache) key(provider string) string {
	return fmt.Sprintf("%s%s", poolAvailableKeyPrefix, provider)
}

func (c *poolEstimateCache) GetAvailable(ctx context.Context, provider string) (float64, error) {
	val, err := c.client.Get(ctx, c.key(provider)).Float64()
	if err != nil {
		if err == redis.Nil {
			return 0, outbound.ErrCacheMiss
		}
		return 0, err
	}
	return val, nil
}

func (c *poolEstimateCache) DecrementAvailable(ctx context.Context, provider string, amount float64) (float64, error) {
	key := c.key(provider)

	newVal, err := c.client.IncrByFloat(ctx, key, -amount).Result()
	if err != nil {
		return 0, err
	}

	c.client.Expire(ctx, key, poolEstimateTTL)

	return newVal, nil
}

func (c *poolEstimateCache) SetAvailable(ctx context.Context, provider string, value float64) error {
	return c.client.Set(ctx, c.key(provider), value, poolEstimateTTL).Err()
}

// Compile-time check
var _ outbound.PoolEstimateCache = (*poolEstimateCache)(nil)
