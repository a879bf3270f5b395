package domain

import (
	"fmt"
	"time"
)

// Scenario is a persisted risk scenario: the subject-matter-expert
// estimates for one loss event type, plus simulation defaults.
type Scenario struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expert estimates
	Frequency RiskEstimate `json:"frequency"` // events per year
	Magnitude RiskEstimate `json:"magnitude"` // loss per event

	// Simulation defaults; individual runs may override RunCount and Seed.
	Confidence float64 `json:"confidence"`
	RunCount   int     `json:"runCount"`

	// Whether the scenario participates in portfolio aggregation.
	Enabled bool `json:"enabled"`

	// Audit timestamps
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Optional metadata (asset, threat community, analyst notes)
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the scenario's estimates and defaults. Frequency bounds
// must be non-negative: an event cannot un-happen.
func (s *Scenario) Validate() error {
	if err := s.Frequency.Validate(); err != nil {
		return err
	}
	if s.Frequency.Min < 0 {
		return fmt.Errorf("%w: frequency min must be >= 0, got %v", ErrInvalidParameter, s.Frequency.Min)
	}
	if err := s.Magnitude.Validate(); err != nil {
		return err
	}
	cfg := SimulationConfig{Confidence: s.Confidence, RunCount: s.RunCount}
	return cfg.Validate()
}

// ScenarioRequest is the API request payload for creating a scenario.
type ScenarioRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Frequency   RiskEstimate           `json:"frequency"`
	Magnitude   RiskEstimate           `json:"magnitude"`
	Confidence  float64                `json:"confidence,omitempty"`
	RunCount    int                    `json:"runCount,omitempty"`
	Enabled     *bool                  `json:"enabled,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ToScenario converts a request to a Scenario domain object, filling
// defaults for omitted simulation settings.
func (r *ScenarioRequest) ToScenario() *Scenario {
	now := time.Now().UTC()
	confidence := r.Confidence
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	runCount := r.RunCount
	if runCount == 0 {
		runCount = DefaultRunCount
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &Scenario{
		Name:        r.Name,
		Description: r.Description,
		Frequency:   r.Frequency,
		Magnitude:   r.Magnitude,
		Confidence:  confidence,
		RunCount:    runCount,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    r.Metadata,
	}
}

// DefaultRunCount is the number of simulated years when the caller does
// not choose one.
const DefaultRunCount = 10000
