// Package cache memoizes read-only query results for a bounded time.
//
// Entries are keyed by operation name plus parameters and hold JSON. Results
// up to one TTL stale are acceptable because the underlying dataset only
// changes when the loader runs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/metrics"
)

// Cache stores opaque values with a per-entry TTL.
type Cache interface {
	// Get returns the value and true on a hit. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Key builds a cache key from an operation name and its parameters.
func Key(op string, parts ...any) string {
	var b strings.Builder
	b.WriteString("paysim:")
	b.WriteString(op)
	for _, p := range parts {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// Fetch returns the cached value for key or computes it with load and
// stores the result for ttl. A nil cache always calls load. Cache failures
// are logged and never fail the call.
func Fetch[T any](ctx context.Context, c Cache, op, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return load(ctx)
	}

	raw, ok, err := c.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookupsTotal.WithLabelValues(op, "error").Inc()
		logging.L(ctx).Debug("cache get failed", "key", key, "error", err)
	case ok:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues(op, "hit").Inc()
			return v, nil
		}
		metrics.CacheLookupsTotal.WithLabelValues(op, "error").Inc()
	default:
		metrics.CacheLookupsTotal.WithLabelValues(op, "miss").Inc()
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		logging.L(ctx).Debug("cache encode failed", "key", key, "error", err)
		return v, nil
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		logging.L(ctx).Debug("cache set failed", "key", key, "error", err)
	}
	return v, nil
}
