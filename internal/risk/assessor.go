package risk

import (
	"context"
	"fmt"

	"github.com/fraudlens/paysim-monitor/internal/detection"
	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/metrics"
	"github.com/fraudlens/paysim-monitor/internal/traces"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

// Request selects what an Assessor scores.
type Request struct {
	Account  string
	StepFrom int
	StepTo   int
	Params   detection.Params
	// TransactionID, when non-nil, adds the single-transaction rule.
	TransactionID *int64
}

// Report bundles an assessment with the inputs it was computed from.
type Report struct {
	KPI         *kpi.AccountKPI           `json:"kpi"`
	Detection   *detection.Result         `json:"detection"`
	Transaction *transactions.Transaction `json:"transaction,omitempty"`
	Assessment  *Assessment               `json:"assessment"`
}

// Assessor gathers KPI, detection and transaction data and scores them.
type Assessor struct {
	kpis     *kpi.Aggregator
	detector *detection.Detector
	store    transactions.Store
}

// NewAssessor creates an Assessor.
func NewAssessor(kpis *kpi.Aggregator, detector *detection.Detector, store transactions.Store) *Assessor {
	return &Assessor{kpis: kpis, detector: detector, store: store}
}

// Assess scores req.Account. A TransactionID that does not exist yields an
// error wrapping transactions.ErrNotFound.
func (a *Assessor) Assess(ctx context.Context, req Request) (rep *Report, err error) {
	ctx, span := traces.StartSpan(ctx, "risk.Assess", traces.Query(req.Account, req.StepFrom, req.StepTo)...)
	defer func() { traces.End(span, err) }()

	k, err := a.kpis.AccountKPI(ctx, req.Account, req.StepFrom, req.StepTo)
	if err != nil {
		return nil, err
	}
	det, err := a.detector.Detect(ctx, req.Account, req.Params)
	if err != nil {
		return nil, err
	}

	var tx *transactions.Transaction
	if req.TransactionID != nil {
		span.SetAttributes(traces.TransactionID(*req.TransactionID))
		tx, err = a.store.Get(ctx, *req.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", *req.TransactionID, err)
		}
	}

	assessment := Score(k, det, tx)
	span.SetAttributes(traces.Score(assessment.Score))
	metrics.RiskScores.Observe(float64(assessment.Score))
	metrics.RiskAssessmentsTotal.WithLabelValues(string(assessment.Severity)).Inc()

	logging.L(ctx).Debug("account scored",
		"account", k.Name,
		"score", assessment.Score,
		"severity", assessment.Severity,
	)

	return &Report{KPI: k, Detection: det, Transaction: tx, Assessment: assessment}, nil
}
