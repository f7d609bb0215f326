// Package detection finds large outgoing TRANSFER and CASH_OUT transactions
// for an account and proposes thresholds suited to its activity.
package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/cache"
	"github.com/fraudlens/paysim-monitor/internal/metrics"
	"github.com/fraudlens/paysim-monitor/internal/traces"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

var (
	ErrEmptyAccount  = errors.New("detection: account is required")
	ErrInvalidParams = errors.New("detection: invalid parameters")
)

const (
	DefaultMinAmount   = 200000.0
	DefaultWindowSteps = 10
	DefaultMaxRows     = 10

	// Note is attached to every result.
	Note = "Simple demonstration rules (no machine learning)."
)

// Params controls a detection run. WindowSteps is reported back to callers
// but does not restrict which transactions match.
type Params struct {
	MinAmount   float64 `json:"min_amount"`
	WindowSteps int     `json:"window_steps"`
	MaxRows     int     `json:"max_rows"`
}

// DefaultParams returns the thresholds used when a caller supplies none.
func DefaultParams() Params {
	return Params{
		MinAmount:   DefaultMinAmount,
		WindowSteps: DefaultWindowSteps,
		MaxRows:     DefaultMaxRows,
	}
}

// Validate rejects negative amounts and non-positive window or row limits.
func (p Params) Validate() error {
	switch {
	case p.MinAmount < 0 || math.IsNaN(p.MinAmount) || math.IsInf(p.MinAmount, 0):
		return fmt.Errorf("%w: min_amount must be a non-negative number", ErrInvalidParams)
	case p.WindowSteps < 1:
		return fmt.Errorf("%w: window_steps must be at least 1", ErrInvalidParams)
	case p.MaxRows < 1:
		return fmt.Errorf("%w: max_rows must be at least 1", ErrInvalidParams)
	}
	return nil
}

// Match is a transaction that satisfied the detection rules.
type Match struct {
	ID            int64             `json:"id"`
	Step          int               `json:"step"`
	Type          transactions.Type `json:"type"`
	Amount        float64           `json:"amount"`
	OriginAccount string            `json:"name_orig"`
	DestAccount   string            `json:"name_dest"`
	IsFraud       bool              `json:"is_fraud"`
}

// Result is the outcome of one detection run.
type Result struct {
	Name        string  `json:"name"`
	MinAmount   float64 `json:"min_amount"`
	WindowSteps int     `json:"window_steps"`
	MaxRows     int     `json:"max_rows"`
	Matches     []Match `json:"matches"`
	Note        string  `json:"note"`
}

// MaxAmount returns the largest matched amount, or 0 without matches.
func (r *Result) MaxAmount() float64 {
	var m float64
	for _, match := range r.Matches {
		if match.Amount > m {
			m = match.Amount
		}
	}
	return m
}

// FraudCount returns how many matches carry the fraud label.
func (r *Result) FraudCount() int {
	n := 0
	for _, match := range r.Matches {
		if match.IsFraud {
			n++
		}
	}
	return n
}

// Suggestion proposes detection parameters from an account's outgoing
// amount distribution.
type Suggestion struct {
	Count       int64   `json:"nb_out"`
	Average     float64 `json:"avg_amt"`
	Max         float64 `json:"max_amt"`
	P95         float64 `json:"p95"`
	MinAmount   float64 `json:"min_amount"`
	WindowSteps int     `json:"window_steps"`
	StepSpan    int     `json:"step_span"`
	Density     float64 `json:"density"`
}

// Detector runs detection queries against a transaction store.
type Detector struct {
	store transactions.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewDetector creates a Detector. c may be nil to disable caching.
func NewDetector(store transactions.Store, c cache.Cache, ttl time.Duration) *Detector {
	return &Detector{store: store, cache: c, ttl: ttl}
}

// Detect returns the account's outgoing TRANSFER and CASH_OUT transactions
// with amount >= p.MinAmount, largest first (ties by ascending id), at most
// p.MaxRows of them.
func (d *Detector) Detect(ctx context.Context, account string, p Params) (*Result, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyAccount
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := cache.Key("detect", account, p.MinAmount, p.WindowSteps, p.MaxRows)
	res, err := cache.Fetch(ctx, d.cache, "detect", key, d.ttl, func(ctx context.Context) (*Result, error) {
		return d.detect(ctx, account, p)
	})
	if err != nil {
		return nil, err
	}
	metrics.DetectionMatches.Observe(float64(len(res.Matches)))
	return res, nil
}

func (d *Detector) detect(ctx context.Context, account string, p Params) (res *Result, err error) {
	ctx, span := traces.StartSpan(ctx, "detection.Detect", traces.Account(account), traces.MinAmount(p.MinAmount))
	defer func() { traces.End(span, err) }()

	txs, err := d.store.LargestRiskyOutgoing(ctx, transactions.MatchQuery{
		Account:   account,
		MinAmount: p.MinAmount,
		Limit:     p.MaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("detect suspicious for %s: %w", account, err)
	}

	matches := make([]Match, 0, len(txs))
	for _, tx := range txs {
		matches = append(matches, Match{
			ID:            tx.ID,
			Step:          tx.Step,
			Type:          tx.Type,
			Amount:        tx.Amount,
			OriginAccount: tx.OriginAccount,
			DestAccount:   tx.DestinationAccount,
			IsFraud:       tx.IsFraud,
		})
	}

	return &Result{
		Name:        account,
		MinAmount:   p.MinAmount,
		WindowSteps: p.WindowSteps,
		MaxRows:     p.MaxRows,
		Matches:     matches,
		Note:        Note,
	}, nil
}

// Suggest proposes a min_amount and window_steps for account. See Suggestion.
func (d *Detector) Suggest(ctx context.Context, account string) (*Suggestion, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyAccount
	}

	key := cache.Key("suggest", account)
	return cache.Fetch(ctx, d.cache, "suggest", key, d.ttl, func(ctx context.Context) (*Suggestion, error) {
		stats, err := d.store.OutgoingStats(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("outgoing stats for %s: %w", account, err)
		}
		return Suggest(stats), nil
	})
}

// RiskyStats reports how many risky outgoing transactions account has and
// how large they are.
func (d *Detector) RiskyStats(ctx context.Context, account string) (*transactions.RiskyStats, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrEmptyAccount
	}

	key := cache.Key("risky_stats", account)
	return cache.Fetch(ctx, d.cache, "risky_stats", key, d.ttl, func(ctx context.Context) (*transactions.RiskyStats, error) {
		stats, err := d.store.RiskyOutgoingStats(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("risky stats for %s: %w", account, err)
		}
		return stats, nil
	})
}

// Suggest derives parameters from outgoing stats. The threshold starts at
// the largest of p95, twice the average and 50,000, is capped at the largest
// outgoing amount, and is floored to a multiple of 1,000. Busier accounts get
// a narrower window.
func Suggest(stats *transactions.OutgoingStats) *Suggestion {
	base := math.Max(stats.P95, math.Max(stats.Average*2, 50000))
	if stats.Max > 0 {
		base = math.Min(base, stats.Max)
	}
	minAmount := math.Floor(base/1000) * 1000
	if minAmount <= 0 {
		minAmount = 50000
	}

	window := 20
	switch {
	case stats.Count >= 30:
		window = 5
	case stats.Count >= 10:
		window = 10
	}

	span := stats.StepMax - stats.StepMin
	if span < 0 {
		span = 0
	}
	var density float64
	if span > 0 {
		density = float64(stats.Count) / float64(span)
	} else {
		density = float64(stats.Count)
	}

	return &Suggestion{
		Count:       stats.Count,
		Average:     stats.Average,
		Max:         stats.Max,
		P95:         stats.P95,
		MinAmount:   minAmount,
		WindowSteps: window,
		StepSpan:    span,
		Density:     density,
	}
}

// Diagnosis explains why a detection run returned no matches.
type Diagnosis struct {
	Reason        string  `json:"reason"`
	SuggestAmount float64 `json:"suggested_min_amount,omitempty"`
}

// Diagnose explains an empty result using the account's risky outgoing stats.
// It returns nil when res has matches.
func Diagnose(res *Result, stats *transactions.RiskyStats) *Diagnosis {
	if len(res.Matches) > 0 {
		return nil
	}
	switch {
	case stats.Count == 0:
		return &Diagnosis{Reason: "The account has no outgoing TRANSFER or CASH_OUT transactions, so no match is possible."}
	case stats.Max > 0 && res.MinAmount > stats.Max:
		return &Diagnosis{
			Reason:        fmt.Sprintf("min_amount %.2f is above the largest risky outgoing amount %.2f. Lower the threshold.", res.MinAmount, stats.Max),
			SuggestAmount: math.Max(0, stats.P95),
		}
	default:
		return &Diagnosis{Reason: "Risky outgoing transactions exist but none passed the filters. Lower min_amount or widen window_steps."}
	}
}
