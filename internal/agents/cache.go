package agents

import (
	"context"
	"time"

	redisadapter "enlitens/internal/adapters/redis"
	"enlitens/pkg/logger"
)

// RedisOutputCache stores agent responses in Redis with a TTL. Cache
// failures are logged and treated as misses.
type RedisOutputCache struct {
	client *redisadapter.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisOutputCache creates a cache over the given client.
func NewRedisOutputCache(client *redisadapter.Client, ttl time.Duration) *RedisOutputCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisOutputCache{
		client: client,
		ttl:    ttl,
		log:    logger.Get().With("component", "output_cache"),
	}
}

func (c *RedisOutputCache) Get(ctx context.Context, key string) (*Response, bool) {
	var resp Response
	if err := c.client.Get(ctx, key, &resp); err != nil {
		if err != redisadapter.Nil {
			c.log.Warnf("Cache read failed for %s: %v", key, err)
		}
		return nil, false
	}
	return &resp, true
}

func (c *RedisOutputCache) Set(ctx context.Context, key string, resp *Response) {
	if err := c.client.Set(ctx, key, resp, c.ttl); err != nil {
		c.log.Warnf("Cache write failed for %s: %v", key, err)
	}
}
