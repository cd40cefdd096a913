package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/workstreamd/workstream/pkg/models"
)

// Cache is the caching interface. Only read-side progress data lives here;
// entity state and locking always go through the backend.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	SetContentStats(ctx context.Context, collID *int64, stats map[models.ContentStatus]int64, ttl time.Duration) error
	GetContentStats(ctx context.Context, collID *int64) (map[models.ContentStatus]int64, bool, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetContentStats(ctx context.Context, collID *int64, stats map[models.ContentStatus]int64, ttl time.Duration) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ContentStatsKey(collID), b, ttl).Err()
}

func (c *RedisCache) GetContentStats(ctx context.Context, collID *int64) (map[models.ContentStatus]int64, bool, error) {
	val, err := c.client.Get(ctx, ContentStatsKey(collID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stats map[models.ContentStatus]int64
	if err := json.Unmarshal(val, &stats); err != nil {
		return nil, false, err
	}
	return stats, true, nil
}
