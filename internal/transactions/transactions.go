// Package transactions holds the PaySim transaction records and the
// aggregate queries the fraud monitor runs over them.
//
// Records are immutable after ingestion. Every query is a read filtered by
// origin or destination account and, where relevant, an inclusive step range.
package transactions

import (
	"context"
	"errors"
	"math"
)

// ErrNotFound is returned when no transaction or account matches a lookup.
var ErrNotFound = errors.New("transactions: not found")

// Type is the PaySim transaction category.
type Type string

const (
	TypePayment  Type = "PAYMENT"
	TypeTransfer Type = "TRANSFER"
	TypeCashOut  Type = "CASH_OUT"
	TypeCashIn   Type = "CASH_IN"
	TypeDebit    Type = "DEBIT"
)

// RiskyTypes are the categories the detector considers.
var RiskyTypes = []Type{TypeTransfer, TypeCashOut}

// IsRisky reports whether t moves money out in a way the detector watches.
func (t Type) IsRisky() bool {
	return t == TypeTransfer || t == TypeCashOut
}

// Valid reports whether t is one of the five PaySim categories.
func (t Type) Valid() bool {
	switch t {
	case TypePayment, TypeTransfer, TypeCashOut, TypeCashIn, TypeDebit:
		return true
	}
	return false
}

// Transaction is one PaySim record. Balances are the origin and destination
// balances before and after the movement.
type Transaction struct {
	ID                    int64   `json:"id"`
	Step                  int     `json:"step"`
	Type                  Type    `json:"type"`
	Amount                float64 `json:"amount"`
	OriginAccount         string  `json:"name_orig"`
	OriginOldBalance      float64 `json:"oldbalance_org"`
	OriginNewBalance      float64 `json:"newbalance_org"`
	DestinationAccount    string  `json:"name_dest"`
	DestinationOldBalance float64 `json:"oldbalance_dest"`
	DestinationNewBalance float64 `json:"newbalance_dest"`
	IsFraud               bool    `json:"is_fraud"`
	IsFlaggedFraud        bool    `json:"is_flagged_fraud"`
}

// DrainsOrigin reports whether the transaction emptied a funded origin account
// through a risky type.
func (t *Transaction) DrainsOrigin() bool {
	return t.Type.IsRisky() && t.OriginOldBalance > 0 && t.OriginNewBalance == 0
}

// StepRange is an inclusive step interval.
type StepRange struct {
	From int
	To   int
}

// AllSteps matches every step.
var AllSteps = StepRange{From: math.MinInt32, To: math.MaxInt32}

// Contains reports whether step lies inside the range.
func (r StepRange) Contains(step int) bool {
	return step >= r.From && step <= r.To
}

// FlowTotals aggregates one direction of money flow for an account.
type FlowTotals struct {
	Count int64
	Total float64
	Fraud int64
}

// Average returns Total/Count, or 0 when there are no transactions.
func (f FlowTotals) Average() float64 {
	if f.Count == 0 {
		return 0
	}
	return f.Total / float64(f.Count)
}

// TypeCount is one row of a grouped-by-type count.
type TypeCount struct {
	Type  Type  `json:"type"`
	Count int64 `json:"cnt"`
}

// Overview summarizes the whole loaded dataset.
type Overview struct {
	N         int64       `json:"n"`
	NFraud    int64       `json:"n_fraud"`
	FraudRate float64     `json:"fraud_rate"`
	StepMin   int         `json:"step_min"`
	StepMax   int         `json:"step_max"`
	TopTypes  []TypeCount `json:"top_types"`

	// Filled by the service layer from IDRange and BusiestOrigin. Ids are
	// increasing but not contiguous and need not start at 1.
	IDMin       int64  `json:"id_min"`
	IDMax       int64  `json:"id_max"`
	DemoAccount string `json:"demo_account,omitempty"`
}

// OutgoingStats describes every outgoing transaction of an account,
// regardless of type or step.
type OutgoingStats struct {
	Count   int64
	Average float64
	Max     float64
	P95     float64
	StepMin int
	StepMax int
}

// RiskyStats describes outgoing TRANSFER and CASH_OUT transactions.
type RiskyStats struct {
	Count int64   `json:"nb_risky_out"`
	Max   float64 `json:"max_risky_amount"`
	P95   float64 `json:"p95_risky_amount"`
}

// MatchQuery selects the largest risky outgoing transactions of an account.
type MatchQuery struct {
	Account   string
	MinAmount float64
	Limit     int
}

// PageQuery selects transactions touching an account in (step, id) order,
// strictly after the given position.
type PageQuery struct {
	Account   string
	AfterStep int
	AfterID   int64
	Limit     int
}

// Store answers read queries over the loaded transactions and accepts bulk
// loads from the ingestion pipeline.
type Store interface {
	Get(ctx context.Context, id int64) (*Transaction, error)
	Outgoing(ctx context.Context, account string, steps StepRange) (FlowTotals, error)
	Incoming(ctx context.Context, account string, steps StepRange) (FlowTotals, error)
	TopOutgoingTypes(ctx context.Context, account string, steps StepRange, limit int) ([]TypeCount, error)
	LargestRiskyOutgoing(ctx context.Context, q MatchQuery) ([]*Transaction, error)
	OutgoingStats(ctx context.Context, account string) (*OutgoingStats, error)
	RiskyOutgoingStats(ctx context.Context, account string) (*RiskyStats, error)
	ListByAccount(ctx context.Context, q PageQuery) ([]*Transaction, error)
	Overview(ctx context.Context, topTypes int) (*Overview, error)
	ListAccounts(ctx context.Context, limit int) ([]string, error)
	BusiestOrigin(ctx context.Context) (string, error)
	IDRange(ctx context.Context) (min, max int64, err error)
	Count(ctx context.Context) (int64, error)
	BulkInsert(ctx context.Context, txs []*Transaction) (int, error)
	Ping(ctx context.Context) error
}

// percentile is the linear-interpolation percentile used by Postgres
// percentile_cont. values must be sorted ascending.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return values[0]
	}
	pos := p * float64(len(values)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return values[lo]
	}
	frac := pos - float64(lo)
	return values[lo] + (values[hi]-values[lo])*frac
}
