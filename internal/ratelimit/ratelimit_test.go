package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/paysim-monitor/internal/metrics"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *clock) {
	t.Helper()
	l := New(cfg)
	t.Cleanup(l.Stop)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	l.now = clk.now
	return l, clk
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, clk := newTestLimiter(t, Config{RequestsPerMinute: 60, Burst: 5})

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	clk.advance(500 * time.Millisecond)
	assert.False(t, l.Allow("10.0.0.1"))

	clk.advance(500 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestAllow_RefillCappedAtBurst(t *testing.T) {
	l, clk := newTestLimiter(t, Config{RequestsPerMinute: 600, Burst: 2})

	l.Allow("a")
	clk.advance(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestAllow_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 60, Burst: 1})

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestTake_ReportsWait(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 30, Burst: 1})

	ok, remaining, _ := l.take("a")
	require.True(t, ok)
	assert.Zero(t, remaining)

	ok, _, wait := l.take("a")
	assert.False(t, ok)
	assert.Equal(t, 2*time.Second, wait)
}

func TestEvictIdle(t *testing.T) {
	l, clk := newTestLimiter(t, Config{RequestsPerMinute: 60, Burst: 1, IdleTTL: time.Minute})

	l.Allow("old")
	clk.advance(50 * time.Second)
	l.Allow("new")
	clk.advance(20 * time.Second)

	l.evictIdle()
	assert.Equal(t, 1, l.Len())
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{})
	defer l.Stop()

	def := DefaultConfig()
	assert.Equal(t, def.RequestsPerMinute, l.cfg.RequestsPerMinute)
	assert.Equal(t, def.Burst, l.cfg.Burst)
	assert.Equal(t, def.IdleTTL, l.cfg.IdleTTL)
	assert.InDelta(t, 2.0, l.rate, 1e-9)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 30, Burst: 1, ExemptPrefixes: []string{"/health"}})

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/v1/overview", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}
	before := testutil.ToFloat64(metrics.RateLimitedTotal)

	w := do("/v1/overview")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do("/v1/overview")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Equal(t, float64(2), body["retry_after"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitedTotal))

	for i := 0; i < 3; i++ {
		w := do("/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(DefaultConfig())
	l.Stop()
	l.Stop()
}
