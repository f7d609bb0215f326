// Package health runs the dependency checks behind /health. The transaction
// store is required; the shared query cache is optional because queries
// fall back to the store when it is down.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one check.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Optional  bool   `json:"optional,omitempty"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Pinger is anything that can verify its own connectivity, such as a
// transaction store or a query cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type check struct {
	name     string
	pinger   Pinger
	timeout  time.Duration
	optional bool
}

// Registry holds the checks in registration order.
type Registry struct {
	mu     sync.RWMutex
	checks []check
}

// NewRegistry creates an empty registry. An empty registry is healthy.
func NewRegistry() *Registry {
	return &Registry{}
}

// Require adds a dependency whose failure makes the service unhealthy.
func (r *Registry) Require(name string, p Pinger, timeout time.Duration) {
	r.add(check{name: name, pinger: p, timeout: timeout})
}

// Optional adds a dependency that is reported but never fails the aggregate.
func (r *Registry) Optional(name string, p Pinger, timeout time.Duration) {
	r.add(check{name: name, pinger: p, timeout: timeout, optional: true})
}

func (r *Registry) add(c check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
}

// CheckAll pings every dependency concurrently, each under its own timeout,
// and returns the aggregate plus per-dependency statuses in registration
// order.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checks := append([]check(nil), r.checks...)
	r.mu.RUnlock()

	statuses := make([]Status, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			statuses[i] = c.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, s := range statuses {
		if !s.Healthy && !s.Optional {
			healthy = false
		}
	}
	return healthy, statuses
}

func (c check) run(ctx context.Context) Status {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.pinger.Ping(ctx)
	st := Status{
		Name:      c.name,
		Healthy:   err == nil,
		Optional:  c.optional,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		st.Detail = err.Error()
	}
	return st
}
