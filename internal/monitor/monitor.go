// Package monitor wires the read-side services shared by the RPC server,
// the REST mirror and the dashboard.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/cache"
	"github.com/fraudlens/paysim-monitor/internal/detection"
	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/pagination"
	"github.com/fraudlens/paysim-monitor/internal/risk"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

const (
	overviewTopTypes    = 5
	DefaultAccountLimit = 200
	MaxAccountLimit     = 1000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Services bundles the query components over one transaction store.
type Services struct {
	Store    transactions.Store
	KPIs     *kpi.Aggregator
	Detector *detection.Detector
	Assessor *risk.Assessor

	cache cache.Cache
	ttl   time.Duration
}

// New builds Services over store. c may be nil to disable caching.
func New(store transactions.Store, c cache.Cache, ttl time.Duration) *Services {
	kpis := kpi.NewAggregator(store, c, ttl)
	detector := detection.NewDetector(store, c, ttl)
	return &Services{
		Store:    store,
		KPIs:     kpis,
		Detector: detector,
		Assessor: risk.NewAssessor(kpis, detector, store),
		cache:    c,
		ttl:      ttl,
	}
}

// Overview returns dataset-wide totals along with the id range and the
// busiest sending account, which clients use as demo values.
func (s *Services) Overview(ctx context.Context) (*transactions.Overview, error) {
	return cache.Fetch(ctx, s.cache, "overview", cache.Key("overview"), s.ttl, func(ctx context.Context) (*transactions.Overview, error) {
		ov, err := s.Store.Overview(ctx, overviewTopTypes)
		if err != nil {
			return nil, fmt.Errorf("overview: %w", err)
		}
		if ov.N == 0 {
			return ov, nil
		}
		if ov.IDMin, ov.IDMax, err = s.IDRange(ctx); err != nil {
			return nil, fmt.Errorf("overview id range: %w", err)
		}
		if ov.DemoAccount, err = s.DemoAccount(ctx); err != nil {
			return nil, fmt.Errorf("overview demo account: %w", err)
		}
		return ov, nil
	})
}

// Accounts returns a sorted sample of account names. limit is clamped to
// [1, MaxAccountLimit].
func (s *Services) Accounts(ctx context.Context, limit int) ([]string, error) {
	limit = clamp(limit, DefaultAccountLimit, MaxAccountLimit)
	return cache.Fetch(ctx, s.cache, "accounts", cache.Key("accounts", limit), s.ttl, func(ctx context.Context) ([]string, error) {
		names, err := s.Store.ListAccounts(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		return names, nil
	})
}

// Transaction looks up one transaction. Missing ids return
// transactions.ErrNotFound.
func (s *Services) Transaction(ctx context.Context, id int64) (*transactions.Transaction, error) {
	return s.Store.Get(ctx, id)
}

// HistoryPage is one page of an account's transactions in (step, id) order.
type HistoryPage struct {
	Account      string                      `json:"name"`
	Transactions []*transactions.Transaction `json:"transactions"`
	NextCursor   string                      `json:"next_cursor,omitempty"`
	HasMore      bool                        `json:"has_more"`
}

// History pages through every transaction that sent from or paid into
// account. cursor is the NextCursor of the previous page, or empty.
func (s *Services) History(ctx context.Context, account, cursor string, limit int) (*HistoryPage, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, kpi.ErrEmptyAccount
	}
	limit = clamp(limit, DefaultHistoryLimit, MaxHistoryLimit)

	q := transactions.PageQuery{Account: account, AfterStep: transactions.AllSteps.From, Limit: limit + 1}
	c, err := pagination.Decode(cursor, account)
	if err != nil {
		return nil, err
	}
	if c != nil {
		q.AfterStep, q.AfterID = c.Step, c.ID
	}

	txs, err := s.Store.ListByAccount(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", account, err)
	}
	page, next, more := pagination.Page(txs, limit, account, func(tx *transactions.Transaction) (int, int64) {
		return tx.Step, tx.ID
	})
	if page == nil {
		page = []*transactions.Transaction{}
	}
	return &HistoryPage{Account: account, Transactions: page, NextCursor: next, HasMore: more}, nil
}

// DemoAccount returns the account that sent the most transactions.
func (s *Services) DemoAccount(ctx context.Context) (string, error) {
	return s.Store.BusiestOrigin(ctx)
}

// IDRange returns the smallest and largest transaction ids.
func (s *Services) IDRange(ctx context.Context) (lo, hi int64, err error) {
	return s.Store.IDRange(ctx)
}

func clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
