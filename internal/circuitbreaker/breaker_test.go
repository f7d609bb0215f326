package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

// fakeClock lets tests move past the cooldown without sleeping
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(name string, threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(name, threshold, time.Minute)
	b.now = clock.now
	return b, clock
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestNew_Defaults(t *testing.T) {
	b := New("defaults", 0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
	assert.Equal(t, StateClosed, b.State())
}

func TestDo_PassesResultThrough(t *testing.T) {
	b, _ := newTestBreaker("passthrough", 3)

	assert.NoError(t, b.Do(succeed))
	assert.ErrorIs(t, b.Do(fail), errDown)
	assert.Equal(t, StateClosed, b.State())
}

func TestDo_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker("threshold", 3)

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(fail), errDown)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestDo_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker("reset", 3)

	_ = b.Do(fail)
	_ = b.Do(fail)
	require.NoError(t, b.Do(succeed))
	_ = b.Do(fail)
	_ = b.Do(fail)

	assert.Equal(t, StateClosed, b.State())
}

func TestDo_ProbeAfterCooldownCloses(t *testing.T) {
	b, clock := newTestBreaker("probe-ok", 1)

	_ = b.Do(fail)
	require.Equal(t, StateOpen, b.State())

	clock.advance(59 * time.Second)
	assert.ErrorIs(t, b.Do(succeed), ErrOpen)

	clock.advance(time.Second)
	require.NoError(t, b.Do(succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestDo_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker("probe-fail", 1)

	_ = b.Do(fail)
	clock.advance(time.Minute)

	require.ErrorIs(t, b.Do(fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	// The cooldown restarts from the failed probe.
	clock.advance(30 * time.Second)
	assert.ErrorIs(t, b.Do(succeed), ErrOpen)
}

func TestDo_SingleProbeWhileHalfOpen(t *testing.T) {
	b, clock := newTestBreaker("single-probe", 1)

	_ = b.Do(fail)
	clock.advance(time.Minute)

	var inner error
	err := b.Do(func() error {
		assert.Equal(t, StateHalfOpen, b.State())
		inner = b.Do(succeed)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrOpen)
	assert.Equal(t, StateClosed, b.State())
}

func TestMetrics(t *testing.T) {
	b, clock := newTestBreaker("metrics", 1)

	_ = b.Do(fail)
	assert.Equal(t, float64(StateOpen), testutil.ToFloat64(stateGauge.WithLabelValues("metrics")))
	assert.Equal(t, float64(1), testutil.ToFloat64(transitionsTotal.WithLabelValues("metrics", "open")))

	clock.advance(time.Minute)
	_ = b.Do(succeed)
	assert.Equal(t, float64(StateClosed), testutil.ToFloat64(stateGauge.WithLabelValues("metrics")))
	assert.Equal(t, float64(1), testutil.ToFloat64(transitionsTotal.WithLabelValues("metrics", "half_open")))
	assert.Equal(t, float64(1), testutil.ToFloat64(transitionsTotal.WithLabelValues("metrics", "closed")))
}
