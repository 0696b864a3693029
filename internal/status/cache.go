package status

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the resolver's file-id lookups. Failures degrade to
// a miss; the store stays authoritative.
type RedisCache struct {
	RDB    *redis.Client
	Prefix string
}

func (c *RedisCache) key(k string) string {
	if c.Prefix == "" {
		return k
	}
	return c.Prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.RDB.Get(ctx, c.key(key)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, val string, ttl time.Duration) {
	_ = c.RDB.Set(ctx, c.key(key), val, ttl).Err()
}
