package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

func TestKey(t *testing.T) {
	assert.Equal(t, "paysim:kpi:C123:1:200", Key("kpi", "C123", 1, 200))
	assert.Equal(t, "paysim:overview", Key("overview"))
	assert.NotEqual(t, Key("kpi", "C1", 1, 20), Key("kpi", "C1", 12, 0))
}

func TestFetch_MissThenHit(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (*payload, error) {
		calls++
		return &payload{Name: "C123", Total: 42.5}, nil
	}

	first, err := Fetch(ctx, c, "kpi", "k1", time.Minute, load)
	require.NoError(t, err)
	second, err := Fetch(ctx, c, "kpi", "k1", time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestFetch_NilCacheAlwaysLoads(t *testing.T) {
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	for i := 0; i < 3; i++ {
		_, err := Fetch[int](context.Background(), nil, "overview", "k", time.Minute, load)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestFetch_LoadErrorNotCached(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()
	boom := errors.New("connection refused")

	_, err := Fetch(ctx, c, "kpi", "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := Fetch(ctx, c, "kpi", "k", time.Minute, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}
func (failingCache) Ping(context.Context) error { return errors.New("redis down") }

func TestFetch_CacheFailureFallsBackToLoad(t *testing.T) {
	v, err := Fetch(context.Background(), failingCache{}, "kpi", "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestFetch_CorruptEntryReloads(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("{not json"), time.Minute))

	v, err := Fetch(ctx, c, "kpi", "k", time.Minute, func(context.Context) (*payload, error) {
		return &payload{Name: "C9"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "C9", v.Name)
}
