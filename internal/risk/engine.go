package risk

import (
	"fmt"
	"strings"

	"github.com/fraudlens/paysim-monitor/internal/detection"
	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

// inputs is the normalized view the rules read. Missing KPI or detection
// data reads as zero.
type inputs struct {
	out       kpi.Outgoing
	in        kpi.Incoming
	matches   int
	minAmount float64
	window    int
	tx        *transactions.Transaction
}

type rule struct {
	id     string
	name   string
	points int
	fires  func(in *inputs) bool
	why    func(in *inputs) string
}

// rules are evaluated in order. The single-transaction rule is handled
// separately because its points vary.
var rules = []rule{
	{
		id: "R1", name: "Concentrated outflow", points: 25,
		fires: func(in *inputs) bool { return in.out.Count <= 2 && in.out.Total >= in.minAmount },
		why: func(in *inputs) string {
			return fmt.Sprintf("nb_out <= 2 and total_out >= threshold (%.2f)", in.minAmount)
		},
	},
	{
		id: "R2", name: "High average outflow", points: 20,
		fires: func(in *inputs) bool { return in.out.Count > 0 && in.out.Average >= in.minAmount },
		why: func(in *inputs) string {
			return fmt.Sprintf("nb_out > 0 and avg_out >= threshold (%.2f)", in.minAmount)
		},
	},
	{
		id: "R3", name: "At least one detection match", points: 25,
		fires: func(in *inputs) bool { return in.matches >= 1 },
		why: func(in *inputs) string {
			return fmt.Sprintf(">= 1 outgoing transaction >= %.2f within a %d-step window", in.minAmount, in.window)
		},
	},
	{
		id: "R4", name: "Multiple matches (>= 3)", points: 10,
		fires: func(in *inputs) bool { return in.matches >= 3 },
		why: func(in *inputs) string {
			return fmt.Sprintf(">= 3 transactions detected with threshold %.2f and a %d-step window", in.minAmount, in.window)
		},
	},
	{
		id: "R5", name: "Labeled fraud present", points: 25,
		fires: func(in *inputs) bool { return in.out.Fraud > 0 },
		why: func(in *inputs) string {
			return "at least one outgoing transaction is labeled is_fraud=true (simulated PaySim data)"
		},
	},
	{
		id: "R6", name: "Inflow/outflow imbalance", points: 10,
		fires: func(in *inputs) bool { return in.in.Total == 0 && in.out.Total > 0 },
		why:   func(in *inputs) string { return "total_in = 0 while total_out > 0" },
	},
}

const (
	txRuleID       = "R7"
	txRuleName     = "Single-transaction signal"
	txRuleCap      = 20
	txFraudPoints  = 15
	txDrainPoints  = 10
	txAmountPoints = 10
)

// Score evaluates the rule table against an account's indicators, its
// detection result and, optionally, one of its transactions. Any argument
// may be nil. The result is deterministic for identical inputs.
func Score(k *kpi.AccountKPI, d *detection.Result, tx *transactions.Transaction) *Assessment {
	in := normalize(k, d, tx)

	score := 0
	breakdown := make([]RuleResult, 0, len(rules)+1)
	for _, r := range rules {
		fired := r.fires(in)
		res := RuleResult{ID: r.id, Rule: r.name, Triggered: fired, Why: r.why(in)}
		if fired {
			res.Points = r.points
			score += r.points
		}
		breakdown = append(breakdown, res)
	}

	if in.tx != nil {
		res := scoreTransaction(in)
		score += res.Points
		breakdown = append(breakdown, res)
	}

	if score > MaxScore {
		score = MaxScore
	}
	sev := SeverityFor(score)

	return &Assessment{
		Score:       score,
		Severity:    sev,
		Title:       fmt.Sprintf("Overall risk: %s (score %d/100)", sev, score),
		Bullets:     bullets(in),
		NextActions: NextActions(sev),
		Breakdown:   breakdown,
		Note:        Note,
	}
}

func normalize(k *kpi.AccountKPI, d *detection.Result, tx *transactions.Transaction) *inputs {
	in := &inputs{
		minAmount: FallbackMinAmount,
		window:    FallbackWindowSteps,
		tx:        tx,
	}
	if k != nil {
		in.out = k.Out
		in.in = k.In
	}
	if d != nil {
		in.matches = len(d.Matches)
		if d.MinAmount != 0 {
			in.minAmount = d.MinAmount
		}
		if d.WindowSteps != 0 {
			in.window = d.WindowSteps
		}
	}
	return in
}

// scoreTransaction sums the transaction sub-signals and caps them.
func scoreTransaction(in *inputs) RuleResult {
	tx := in.tx
	points := 0
	var reasons []string

	if tx.IsFraud {
		points += txFraudPoints
		reasons = append(reasons, "transaction labeled fraudulent")
	}
	if tx.DrainsOrigin() {
		points += txDrainPoints
		reasons = append(reasons, "origin balance drained on TRANSFER/CASH_OUT")
	}
	if tx.Amount >= in.minAmount {
		points += txAmountPoints
		reasons = append(reasons, fmt.Sprintf("amount >= threshold (%.2f)", in.minAmount))
	}
	if points > txRuleCap {
		points = txRuleCap
	}

	why := strings.Join(reasons, "; ")
	if why == "" {
		why = fmt.Sprintf("no transaction-level signal (threshold %.2f)", in.minAmount)
	}
	return RuleResult{
		ID:        txRuleID,
		Rule:      txRuleName,
		Points:    points,
		Triggered: points > 0,
		Why:       why,
	}
}

func bullets(in *inputs) []string {
	out := []string{
		fmt.Sprintf("Outgoing transactions: %d for a total of %.2f (average %.2f).", in.out.Count, in.out.Total, in.out.Average),
		fmt.Sprintf("Incoming transactions: %d for a total of %.2f.", in.in.Count, in.in.Total),
	}
	if in.out.Fraud > 0 {
		out = append(out, fmt.Sprintf("Labeled outgoing fraud observed: %d transaction(s).", in.out.Fraud))
	}
	if in.matches == 0 {
		out = append(out, fmt.Sprintf("No outgoing transfer of at least %.2f detected within a %d-step window.", in.minAmount, in.window))
	} else {
		out = append(out, fmt.Sprintf("%d suspicious transfer(s) found (threshold %.2f, window %d steps).", in.matches, in.minAmount, in.window))
	}

	if tx := in.tx; tx != nil {
		if tx.IsFraud {
			out = append(out, "The selected transaction is labeled fraudulent in the dataset (simulation).")
		}
		if tx.DrainsOrigin() {
			out = append(out, "Pattern: origin balance drained by a risky operation (TRANSFER/CASH_OUT).")
		}
		if tx.Amount >= in.minAmount {
			out = append(out, "Pattern: transaction amount at or above the detection threshold.")
		}
	}
	return out
}
