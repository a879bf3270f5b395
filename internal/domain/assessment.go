package domain

import (
	"time"
)

// Assessment is the aggregated tolerance verdict for a simulation run.
type Assessment struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	RunID    string    `json:"runId"`
	Status   string    `json:"status"` // "ALRT" or "NALT"
	Severity string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	// Policy results
	PolicyResults []PolicyResult `json:"policyResults"`

	// Processing metadata
	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID           string `json:"traceId"`
	SimulationMs      int64  `json:"simulationMs"`
	PoliciesMs        int64  `json:"policiesMs"`
	TotalMs           int64  `json:"totalMs"`
	PoliciesEvaluated int    `json:"policiesEvaluated"`
	EngineVersion     string `json:"engineVersion"`
}

// AssessmentResponse is the API response for a run assessment.
type AssessmentResponse struct {
	AssessmentID string             `json:"assessmentId"`
	RunID        string             `json:"runId"`
	TenantID     string             `json:"tenantId"`
	Status       string             `json:"status"` // "PASS" or "ALERT"
	Severity     string             `json:"severity"`
	Reasons      []string           `json:"reasons,omitempty"`
	Metadata     AssessmentMetadata `json:"metadata"`
}

// Assessment status constants
const (
	StatusAlert   = "ALRT" // at least one tolerance breached
	StatusNoAlert = "NALT" // all tolerances held
)

// API-friendly status
const (
	StatusPass = "PASS"
	StatusFail = "ALERT"
)

// ToResponse converts an Assessment to an API response.
func (a *Assessment) ToResponse() *AssessmentResponse {
	status := StatusPass
	if a.Status == StatusAlert {
		status = StatusFail
	}

	var reasons []string
	for _, r := range a.PolicyResults {
		if r.Severity == SeverityBreach || r.Severity == SeverityReview {
			reasons = append(reasons, r.Reason)
		}
	}

	return &AssessmentResponse{
		AssessmentID: a.ID,
		RunID:        a.RunID,
		TenantID:     a.TenantID,
		Status:       status,
		Severity:     a.Severity,
		Reasons:      reasons,
		Metadata:     a.Metadata,
	}
}
