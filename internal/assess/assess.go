// Package assess aggregates tolerance policy results into a final
// assessment for a simulation run.
package assess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Processor aggregates policy results and produces a final verdict.
type Processor struct {
	// AlertOnReview escalates .review severities to an alert as well.
	AlertOnReview bool
}

// NewProcessor creates a new assessment processor with default settings.
func NewProcessor() *Processor {
	return &Processor{}
}

// Input contains all data needed for an assessment.
type Input struct {
	TenantID      string
	RunID         string
	TraceID       string
	PolicyResults []domain.PolicyResult
	SimulationMs  int64
	StartTime     time.Time
}

// severityRank orders severities from benign to critical.
func severityRank(s string) int {
	switch s {
	case domain.SeverityOK:
		return 0
	case domain.SeverityReview:
		return 1
	case domain.SeverityError:
		return 2
	case domain.SeverityBreach:
		return 3
	default:
		return 0
	}
}

// Process aggregates policy results and produces a final assessment.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Assessment {
	start := time.Now()

	assessment := &domain.Assessment{
		ID:            uuid.New().String(),
		TenantID:      input.TenantID,
		RunID:         input.RunID,
		Timestamp:     time.Now().UTC(),
		PolicyResults: input.PolicyResults,
	}

	worst := domain.SeverityOK
	for _, r := range input.PolicyResults {
		if severityRank(r.Severity) > severityRank(worst) {
			worst = r.Severity
		}
	}
	assessment.Severity = worst

	switch {
	case worst == domain.SeverityBreach:
		assessment.Status = domain.StatusAlert
	case worst == domain.SeverityReview && p.AlertOnReview:
		assessment.Status = domain.StatusAlert
	default:
		assessment.Status = domain.StatusNoAlert
	}

	totalMs := time.Since(input.StartTime).Milliseconds()
	if input.StartTime.IsZero() {
		totalMs = time.Since(start).Milliseconds()
	}

	assessment.Metadata = domain.AssessmentMetadata{
		TraceID:           input.TraceID,
		SimulationMs:      input.SimulationMs,
		PoliciesMs:        time.Since(start).Milliseconds(),
		TotalMs:           totalMs,
		PoliciesEvaluated: len(input.PolicyResults),
	}

	return assessment
}

// ShouldAlert reports whether an assessment warrants publishing to the
// breach topic.
func ShouldAlert(a *domain.Assessment) bool {
	return a != nil && a.Status == domain.StatusAlert
}

// GetReasons collects the human-readable reasons from non-ok results.
func GetReasons(a *domain.Assessment) []string {
	if a == nil {
		return nil
	}
	var reasons []string
	for _, r := range a.PolicyResults {
		if r.Severity != domain.SeverityOK && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
