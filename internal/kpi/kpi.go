// Package kpi computes per-account flow indicators over a step range.
package kpi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/cache"
	"github.com/fraudlens/paysim-monitor/internal/traces"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

// ErrEmptyAccount is returned when no account identifier is given.
var ErrEmptyAccount = errors.New("kpi: account is required")

const (
	DefaultStepFrom = 1
	DefaultStepTo   = 200
	topTypesLimit   = 5
)

// Outgoing summarizes transactions sent by the account.
type Outgoing struct {
	Count   int64   `json:"nb_out"`
	Total   float64 `json:"total_out"`
	Average float64 `json:"avg_out_amount"`
	Fraud   int64   `json:"fraud_out"`
}

// Incoming summarizes transactions received by the account.
type Incoming struct {
	Count   int64   `json:"nb_in"`
	Total   float64 `json:"total_in"`
	Average float64 `json:"avg_in_amount"`
}

// AccountKPI is the flow summary of one account over an inclusive step range.
type AccountKPI struct {
	Name        string                   `json:"name"`
	StepFrom    int                      `json:"step_from"`
	StepTo      int                      `json:"step_to"`
	Out         Outgoing                 `json:"out"`
	In          Incoming                 `json:"in"`
	TopOutTypes []transactions.TypeCount `json:"top_out_types"`
}

// Summary is the all-time view of an account.
type Summary struct {
	Name     string  `json:"name"`
	CountOut int64   `json:"nb_out"`
	TotalOut float64 `json:"total_out"`
	CountIn  int64   `json:"nb_in"`
	TotalIn  float64 `json:"total_in"`
	FraudOut int64   `json:"fraud_out"`
}

// Aggregator answers KPI queries against a transaction store.
type Aggregator struct {
	store transactions.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewAggregator creates an Aggregator. c may be nil to disable caching.
func NewAggregator(store transactions.Store, c cache.Cache, ttl time.Duration) *Aggregator {
	return &Aggregator{store: store, cache: c, ttl: ttl}
}

// AccountKPI computes outgoing and incoming totals for account over
// [stepFrom, stepTo]. An inverted range yields all-zero indicators.
func (a *Aggregator) AccountKPI(ctx context.Context, account string, stepFrom, stepTo int) (*AccountKPI, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyAccount
	}

	key := cache.Key("kpi", account, stepFrom, stepTo)
	return cache.Fetch(ctx, a.cache, "kpi", key, a.ttl, func(ctx context.Context) (*AccountKPI, error) {
		return a.compute(ctx, account, stepFrom, stepTo)
	})
}

func (a *Aggregator) compute(ctx context.Context, account string, stepFrom, stepTo int) (k *AccountKPI, err error) {
	ctx, span := traces.StartSpan(ctx, "kpi.AccountKPI", traces.Query(account, stepFrom, stepTo)...)
	defer func() { traces.End(span, err) }()

	steps := transactions.StepRange{From: stepFrom, To: stepTo}

	out, err := a.store.Outgoing(ctx, account, steps)
	if err != nil {
		return nil, fmt.Errorf("outgoing totals for %s: %w", account, err)
	}
	in, err := a.store.Incoming(ctx, account, steps)
	if err != nil {
		return nil, fmt.Errorf("incoming totals for %s: %w", account, err)
	}
	top, err := a.store.TopOutgoingTypes(ctx, account, steps, topTypesLimit)
	if err != nil {
		return nil, fmt.Errorf("outgoing types for %s: %w", account, err)
	}
	if top == nil {
		top = []transactions.TypeCount{}
	}

	return &AccountKPI{
		Name:     account,
		StepFrom: stepFrom,
		StepTo:   stepTo,
		Out: Outgoing{
			Count:   out.Count,
			Total:   out.Total,
			Average: out.Average(),
			Fraud:   out.Fraud,
		},
		In: Incoming{
			Count:   in.Count,
			Total:   in.Total,
			Average: in.Average(),
		},
		TopOutTypes: top,
	}, nil
}

// Summary returns all-time totals for account.
func (a *Aggregator) Summary(ctx context.Context, account string) (*Summary, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyAccount
	}

	key := cache.Key("summary", account)
	return cache.Fetch(ctx, a.cache, "summary", key, a.ttl, func(ctx context.Context) (*Summary, error) {
		out, err := a.store.Outgoing(ctx, account, transactions.AllSteps)
		if err != nil {
			return nil, fmt.Errorf("outgoing totals for %s: %w", account, err)
		}
		in, err := a.store.Incoming(ctx, account, transactions.AllSteps)
		if err != nil {
			return nil, fmt.Errorf("incoming totals for %s: %w", account, err)
		}
		return &Summary{
			Name:     account,
			CountOut: out.Count,
			TotalOut: out.Total,
			CountIn:  in.Count,
			TotalIn:  in.Total,
			FraudOut: out.Fraud,
		}, nil
	})
}
