// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is returned when simulation inputs fail validation.
// It is always raised before any random draw is performed.
var ErrInvalidParameter = errors.New("invalid parameter")

// RiskEstimate is a three-point expert estimate of an uncertain quantity.
// Two instances drive a simulation: one for annual event frequency and one
// for per-event loss magnitude. Immutable once constructed.
type RiskEstimate struct {
	Min    float64 `json:"min"`
	Likely float64 `json:"likely"`
	Max    float64 `json:"max"`
}

// Validate checks the ordering invariant min <= likely <= max and that all
// bounds are finite.
func (e RiskEstimate) Validate() error {
	for _, v := range []float64{e.Min, e.Likely, e.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: estimate bounds must be finite", ErrInvalidParameter)
		}
	}
	if e.Min > e.Likely {
		return fmt.Errorf("%w: min %v exceeds likely %v", ErrInvalidParameter, e.Min, e.Likely)
	}
	if e.Likely > e.Max {
		return fmt.Errorf("%w: likely %v exceeds max %v", ErrInvalidParameter, e.Likely, e.Max)
	}
	return nil
}

// IsDegenerate reports whether the estimate collapses to a single point.
func (e RiskEstimate) IsDegenerate() bool {
	return e.Min == e.Max
}

// Mean returns the modified-PERT mean for the given confidence shape.
func (e RiskEstimate) Mean(shape float64) float64 {
	return (e.Min + shape*e.Likely + e.Max) / (shape + 2)
}

// DefaultConfidence is the standard PERT shape parameter.
const DefaultConfidence = 4.0

// SimulationConfig governs sampler behavior for a whole run.
// Immutable once a run starts.
type SimulationConfig struct {
	// Confidence is the PERT shape parameter. Larger values concentrate
	// draws around the likely estimate. Must be > 0.
	Confidence float64 `json:"confidence"`

	// RunCount is the number of simulated years. Must be > 0.
	RunCount int `json:"runCount"`

	// Seed, when set, makes the run bit-reproducible regardless of
	// MaxWorkers. When nil a seed is drawn from the OS entropy pool and
	// reported back on the outcome.
	Seed *uint64 `json:"seed,omitempty"`

	// Percentile for the value-at-risk metric, in [0,1]. Zero means the
	// default of 0.975.
	Percentile float64 `json:"percentile,omitempty"`

	// MaxWorkers bounds the parallelism of the compounding loop.
	// Zero means one worker per CPU.
	MaxWorkers int `json:"maxWorkers,omitempty"`
}

// DefaultVaRPercentile is the upper-tail percentile used when the caller
// does not choose one.
const DefaultVaRPercentile = 0.975

// Validate checks config ranges.
func (c SimulationConfig) Validate() error {
	if c.Confidence <= 0 || math.IsNaN(c.Confidence) || math.IsInf(c.Confidence, 0) {
		return fmt.Errorf("%w: confidence shape must be > 0, got %v", ErrInvalidParameter, c.Confidence)
	}
	if c.RunCount <= 0 {
		return fmt.Errorf("%w: run count must be > 0, got %d", ErrInvalidParameter, c.RunCount)
	}
	if c.Percentile < 0 || c.Percentile > 1 {
		return fmt.Errorf("%w: percentile must be in [0,1], got %v", ErrInvalidParameter, c.Percentile)
	}
	return nil
}

// VaRPercentile returns the effective value-at-risk percentile.
func (c SimulationConfig) VaRPercentile() float64 {
	if c.Percentile == 0 {
		return DefaultVaRPercentile
	}
	return c.Percentile
}
