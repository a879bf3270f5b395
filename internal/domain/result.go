package domain

import (
	"time"
)

// RiskMetrics summarizes an annual-loss-exposure sample.
type RiskMetrics struct {
	MinLoss float64 `json:"minLoss"`
	MaxLoss float64 `json:"maxLoss"`
	Mean    float64 `json:"mean"`

	// ValueAtRisk is the loss at Percentile, by linear interpolation
	// between order statistics.
	ValueAtRisk float64 `json:"valueAtRisk"`
	Percentile  float64 `json:"percentile"`
}

// ExceedancePoint pairs a loss value with the probability that a simulated
// year's total loss exceeds it.
type ExceedancePoint struct {
	Loss        float64 `json:"loss"`
	Probability float64 `json:"probability"`
}

// ExceedanceCurve is the empirical complementary cumulative loss
// distribution, ordered ascending by loss.
type ExceedanceCurve []ExceedancePoint

// Outcome holds every artifact of one simulation run. Outcomes are kept in
// the ephemeral cache with a TTL; they are never written to the repository.
type Outcome struct {
	RunID      string `json:"runId"`
	TenantID   string `json:"tenantId"`
	ScenarioID string `json:"scenarioId,omitempty"`

	// Seed actually used, reported so any run can be replayed.
	Seed     uint64 `json:"seed"`
	RunCount int    `json:"runCount"`

	// FrequencySample holds the continuous events-per-year draws.
	FrequencySample []float64 `json:"frequencySample,omitempty"`

	// CrudeALE is frequency times a single magnitude draw per year.
	// ALE is the frequency-compounded sum of magnitude draws per year.
	CrudeALE []float64 `json:"crudeAle,omitempty"`
	ALE      []float64 `json:"ale,omitempty"`

	Metrics      RiskMetrics     `json:"metrics"`
	CrudeMetrics RiskMetrics     `json:"crudeMetrics"`
	Exceedance   ExceedanceCurve `json:"exceedance,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Processing metadata
	Metadata OutcomeMetadata `json:"metadata"`
}

// OutcomeMetadata contains processing information for one run.
type OutcomeMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	FrequencyMs   int64  `json:"frequencyMs"`
	CompoundMs    int64  `json:"compoundMs"`
	MetricsMs     int64  `json:"metricsMs"`
	TotalMs       int64  `json:"totalMs"`
	EventsDrawn   int64  `json:"eventsDrawn"` // total magnitude draws in the compounding loop
	Workers       int    `json:"workers"`
	EngineVersion string `json:"engineVersion,omitempty"`
}

// OutcomeSummary is the API-facing view of an Outcome: metrics and
// identifiers without the full sample arrays.
type OutcomeSummary struct {
	RunID        string          `json:"runId"`
	ScenarioID   string          `json:"scenarioId,omitempty"`
	Seed         uint64          `json:"seed"`
	RunCount     int             `json:"runCount"`
	Metrics      RiskMetrics     `json:"metrics"`
	CrudeMetrics RiskMetrics     `json:"crudeMetrics"`
	Timestamp    time.Time       `json:"timestamp"`
	Metadata     OutcomeMetadata `json:"metadata"`
}

// Summary returns the outcome without its sample arrays.
func (o *Outcome) Summary() *OutcomeSummary {
	return &OutcomeSummary{
		RunID:        o.RunID,
		ScenarioID:   o.ScenarioID,
		Seed:         o.Seed,
		RunCount:     o.RunCount,
		Metrics:      o.Metrics,
		CrudeMetrics: o.CrudeMetrics,
		Timestamp:    o.Timestamp,
		Metadata:     o.Metadata,
	}
}
