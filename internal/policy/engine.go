// Package policy provides the CEL-Go based tolerance policy engine.
// Policies are predicates or scores over the metrics of a completed
// simulation run, mapped to severities through bands.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based tolerance policy engine.
type Engine struct {
	mu               sync.RWMutex
	env              *cel.Env
	compiledPolicies map[string]*CompiledPolicy
	maxWorkers       int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.TolerancePolicy
	Program cel.Program
}

// NewEngine creates a new tolerance policy engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with run-metric variables
	env, err := cel.NewEnv(
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("mean", cel.DoubleType),
		cel.Variable("min_loss", cel.DoubleType),
		cel.Variable("max_loss", cel.DoubleType),
		cel.Variable("value_at_risk", cel.DoubleType),
		cel.Variable("percentile", cel.DoubleType),
		cel.Variable("run_count", cel.IntType),
		cel.Variable("scenario_name", cel.StringType),
		// Analytic frequency mean, for appetite checks scaled per event
		cel.Variable("frequency_mean", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:              env,
		compiledPolicies: make(map[string]*CompiledPolicy),
		maxWorkers:       maxWorkers,
	}, nil
}

// ValidatePolicy compiles and validates a policy without mutating loaded
// engine policies.
func (e *Engine) ValidatePolicy(cfg *domain.TolerancePolicy) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.TolerancePolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiledPolicies[cfg.ID] = compiled

	return nil
}

// LoadPolicies compiles and loads multiple policies.
func (e *Engine) LoadPolicies(configs []*domain.TolerancePolicy) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the run data for policy evaluation.
type EvaluateInput struct {
	TenantID      string
	RunID         string
	ScenarioName  string
	Metrics       domain.RiskMetrics
	RunCount      int
	FrequencyMean float64
}

// EvaluateAll evaluates all loaded policies in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.PolicyResult, error) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiledPolicies))
	for _, p := range e.compiledPolicies {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil, nil
	}

	// Prepare CEL activation variables
	activation := map[string]any{
		"metrics": map[string]any{
			"mean":          input.Metrics.Mean,
			"min_loss":      input.Metrics.MinLoss,
			"max_loss":      input.Metrics.MaxLoss,
			"value_at_risk": input.Metrics.ValueAtRisk,
			"percentile":    input.Metrics.Percentile,
		},
		"mean":           input.Metrics.Mean,
		"min_loss":       input.Metrics.MinLoss,
		"max_loss":       input.Metrics.MaxLoss,
		"value_at_risk":  input.Metrics.ValueAtRisk,
		"percentile":     input.Metrics.Percentile,
		"run_count":      int64(input.RunCount),
		"scenario_name":  input.ScenarioName,
		"frequency_mean": input.FrequencyMean,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.PolicyResult, len(policies))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, p := range policies {
		wg.Add(1)
		go func(idx int, p *CompiledPolicy) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluatePolicy(ctx, p, activation, input)
		}(i, p)
	}

	wg.Wait()

	return results, nil
}

// evaluatePolicy evaluates a single policy and returns the result.
func (e *Engine) evaluatePolicy(ctx context.Context, p *CompiledPolicy, activation map[string]any, input *EvaluateInput) domain.PolicyResult {
	start := time.Now()

	result := domain.PolicyResult{
		PolicyID: p.Config.ID,
		TenantID: input.TenantID,
		RunID:    input.RunID,
	}

	// Evaluate CEL expression
	out, _, err := p.Program.Eval(activation)
	if err != nil {
		result.Severity = domain.SeverityError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	// Convert result to score
	score := toScore(out)
	result.Score = score

	// Determine severity based on bands
	result.Severity, result.Reason = matchBand(score, p.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order. Lower inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.PolicyBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e18) // effectively infinity

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		if score >= lower && (!hasUpper || score < upper) {
			return band.Severity, band.Reason
		}
	}

	// Default to ok if no band matches
	return domain.SeverityOK, "no matching band"
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledPolicies)
}

// ReloadPolicies clears all existing policies and loads new ones.
// This enables hot-reloading of policies from the database.
func (e *Engine) ReloadPolicies(configs []*domain.TolerancePolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newPolicies := make(map[string]*CompiledPolicy)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		newPolicies[cfg.ID] = compiled
	}

	e.compiledPolicies = newPolicies

	return nil
}

// GetLoadedPolicies returns the currently loaded policy configurations.
func (e *Engine) GetLoadedPolicies() []*domain.TolerancePolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]*domain.TolerancePolicy, 0, len(e.compiledPolicies))
	for _, compiled := range e.compiledPolicies {
		policies = append(policies, compiled.Config)
	}
	return policies
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledPolicies = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.TolerancePolicy) (*CompiledPolicy, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("policy %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}
