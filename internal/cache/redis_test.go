package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/paysim-monitor/internal/circuitbreaker"
)

func unreachableRedis(threshold int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewRedisCacheWithClient(client, circuitbreaker.New("redis-test", threshold, time.Minute))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url://")
	assert.Error(t, err)
}

func TestRedisCache_UnreachableOpensBreaker(t *testing.T) {
	c := unreachableRedis(2)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, ok, err := c.Get(ctx, "k")
		require.Error(t, err)
		assert.False(t, ok)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	err = c.Set(ctx, "k", []byte("v"), time.Minute)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	assert.Error(t, c.Ping(ctx))
}

func TestRedisCache_FetchDegradesToLoad(t *testing.T) {
	c := unreachableRedis(1)
	defer func() { _ = c.Close() }()

	v, err := Fetch(context.Background(), c, "overview", Key("overview"), time.Minute, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
