// Package risk turns account indicators and detection matches into an
// explainable risk assessment.
//
// Scoring is a fixed, ordered rule table. Every rule awards a fixed number
// of points when its trigger holds, and the sum saturates at 100. The engine
// performs no I/O; Assessor composes it with the KPI and detection queries.
package risk

// Severity is the three-tier label derived from a score.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityModerate Severity = "Moderate"
	SeverityHigh     Severity = "High"
)

// Score thresholds for severity tiers.
const (
	HighThreshold     = 80
	ModerateThreshold = 50
	MaxScore          = 100
)

// Fallbacks applied when the detection result carries no threshold or window.
const (
	FallbackMinAmount   = 200000.0
	FallbackWindowSteps = 10
)

// Note is attached to every assessment.
const Note = "Simple demonstration rules (no machine learning): thresholds, windows and explainable patterns."

// SeverityFor maps a score onto its tier.
func SeverityFor(score int) Severity {
	switch {
	case score >= HighThreshold:
		return SeverityHigh
	case score >= ModerateThreshold:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// RuleResult is one line of the score breakdown.
type RuleResult struct {
	ID        string `json:"id"`
	Rule      string `json:"rule"`
	Points    int    `json:"points"`
	Triggered bool   `json:"triggered"`
	Why       string `json:"why"`
}

// Assessment is the explained outcome of scoring one account.
type Assessment struct {
	Score       int          `json:"score"`
	Severity    Severity     `json:"severity"`
	Title       string       `json:"title"`
	Bullets     []string     `json:"bullets"`
	NextActions []string     `json:"next_actions"`
	Breakdown   []RuleResult `json:"breakdown"`
	Note        string       `json:"note"`
}

var nextActions = map[Severity][]string{
	SeverityHigh: {
		"Put the account under priority manual review.",
		"Check old/new balance consistency on the detected transfers.",
		"Analyze frequent counterparties (name_dest) and how the activity clusters in time (steps).",
	},
	SeverityModerate: {
		"Run a targeted review of transfers above the threshold and of the step window.",
		"Compare this account with similar accounts (same transaction types and volumes).",
	},
	SeverityLow: {
		"No strong signal: keep the account under simple alerting.",
		"Lower the threshold for more sensitivity, at the cost of more false positives.",
	},
}

// NextActions returns the recommended follow-ups for a severity tier.
func NextActions(s Severity) []string {
	src := nextActions[s]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Badge is a quick label for a detection result shown before full scoring.
type Badge string

const (
	BadgeLow    Badge = "Low"
	BadgeMedium Badge = "Medium"
	BadgeHigh   Badge = "High"
)

// QuickBadge labels a detection result by match count and largest amount.
func QuickBadge(matches int, maxAmount float64) Badge {
	switch {
	case matches == 0:
		return BadgeLow
	case matches >= 3 || maxAmount >= 1_000_000:
		return BadgeHigh
	default:
		return BadgeMedium
	}
}
