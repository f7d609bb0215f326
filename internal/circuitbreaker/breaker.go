// Package circuitbreaker guards an optional dependency, such as the shared
// query cache, so an outage there falls back to the primary store instead
// of adding a network timeout to every request.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the breaker position.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls fail fast with ErrOpen
	StateHalfOpen              // one probe call is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paysim",
		Subsystem: "circuitbreaker",
		Name:      "transitions_total",
		Help:      "Breaker state changes by dependency and target state.",
	}, []string{"dependency", "to_state"})

	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "paysim",
		Subsystem: "circuitbreaker",
		Name:      "state",
		Help:      "Current breaker state by dependency (0 closed, 1 open, 2 half-open).",
	}, []string{"dependency"})
)

func init() {
	prometheus.MustRegister(transitionsTotal, stateGauge)
}

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// Breaker trips open after threshold consecutive failures of one
// dependency. Once cooldown has passed a single probe is let through; its
// outcome closes the breaker or re-opens it for another cooldown.
type Breaker struct {
	dependency string
	threshold  int
	cooldown   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New creates a closed breaker for dependency. Non-positive threshold and
// cooldown default to 5 failures and 30 seconds.
func New(dependency string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	stateGauge.WithLabelValues(dependency).Set(float64(StateClosed))
	return &Breaker{
		dependency: dependency,
		threshold:  threshold,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Do runs fn unless the breaker is open and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		if b.state != StateOpen {
			b.setState(StateOpen)
		}
	}
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	transitionsTotal.WithLabelValues(b.dependency, to.String()).Inc()
	stateGauge.WithLabelValues(b.dependency).Set(float64(to))

	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Default().Log(context.Background(), level, "circuit breaker state change",
		"dependency", b.dependency, "from", from.String(), "to", to.String(), "failures", b.failures)
}
