package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fraudlens/paysim-monitor/internal/circuitbreaker"
)

// RedisCache is a Cache shared by every replica of the server. Calls go
// through a circuit breaker; while it is open Get and Set fail fast and
// callers fall back to the store.
type RedisCache struct {
	client  *redis.Client
	breaker *circuitbreaker.Breaker
}

// NewRedisCache connects to the Redis instance at url
// (redis://[:password@]host:port/db).
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return NewRedisCacheWithClient(redis.NewClient(opts), circuitbreaker.New("redis", 5, 30*time.Second)), nil
}

// NewRedisCacheWithClient wraps an existing client and breaker.
func NewRedisCacheWithClient(client *redis.Client, breaker *circuitbreaker.Breaker) *RedisCache {
	return &RedisCache{client: client, breaker: breaker}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data []byte
		hit  bool
	)
	err := c.breaker.Do(func() error {
		b, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		data, hit = b, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, hit, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.breaker.Do(func() error {
		return c.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity without consulting the breaker, so health
// checks report the real state of Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
