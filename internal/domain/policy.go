package domain

// TolerancePolicy defines a risk tolerance check evaluated against the
// metrics of a completed simulation run.
type TolerancePolicy struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over run metrics, e.g.
	// "value_at_risk > 5000000.0" or "mean / 1000000.0".
	Expression string `json:"expression"`

	// Outcome bands for score-to-severity mapping
	Bands []PolicyBand `json:"bands"`

	// Whether policy is active
	Enabled bool `json:"enabled"`
}

// PolicyBand maps a score range to a severity outcome.
type PolicyBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   string   `json:"severity"` // e.g., ".ok", ".review", ".breach"
	Reason     string   `json:"reason"`
}

// PolicyResult is the output of a tolerance policy evaluation.
type PolicyResult struct {
	PolicyID  string  `json:"policyId"`
	TenantID  string  `json:"tenantId"`
	RunID     string  `json:"runId"`
	Severity  string  `json:"severity"` // ".ok", ".review", ".breach", ".err"
	Score     float64 `json:"score"`    // The computed value
	Reason    string  `json:"reason"`
	ProcessMs int64   `json:"processMs"` // Processing time in milliseconds
}

// Predefined policy severities
const (
	SeverityOK     = ".ok"
	SeverityReview = ".review"
	SeverityBreach = ".breach"
	SeverityError  = ".err"
)
