package insights

import (
	"context"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/pkg/redis"
)

// RedisTargetCache backs contracts.TargetCache with the shared Redis
// cache helper. With Redis disabled every read is a miss and writes
// are no-ops, so the materializer silently degrades to recomputing.
type RedisTargetCache struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisTargetCache creates a new Redis-backed target cache
func NewRedisTargetCache(cache *redis.Cache, ttl time.Duration) *RedisTargetCache {
	return &RedisTargetCache{cache: cache, ttl: ttl}
}

var _ contracts.TargetCache = (*RedisTargetCache)(nil)

func (c *RedisTargetCache) Get(ctx context.Context, insightID string) ([]contracts.InsightMaterializedTarget, bool, error) {
	var targets []contracts.InsightMaterializedTarget
	found, err := c.cache.Get(ctx, redis.InsightTargetsKey(insightID), &targets)
	if err != nil || !found {
		return nil, false, err
	}
	return targets, true, nil
}

func (c *RedisTargetCache) Set(ctx context.Context, insightID string, targets []contracts.InsightMaterializedTarget) error {
	return c.cache.Set(ctx, redis.InsightTargetsKey(insightID), targets, c.ttl)
}

func (c *RedisTargetCache) Invalidate(ctx context.Context, insightID string) error {
	return c.cache.Delete(ctx, redis.InsightTargetsKey(insightID))
}
