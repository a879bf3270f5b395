// Package pert provides modified-PERT random deviate sampling.
//
// The modified-PERT distribution reparameterizes the Beta distribution by a
// three-point expert estimate (min, likely, max) plus a confidence shape.
// Draws take an explicit rand.Source so that seeding and parallel sub-stream
// partitioning stay under the caller's control; there is no package-level
// random state.
package pert

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Sampler draws independent modified-PERT deviates on [min, max] peaked at
// likely. Immutable after construction; safe for concurrent use as long as
// each goroutine supplies its own Source.
type Sampler struct {
	min    float64
	likely float64
	max    float64
	shape  float64

	alpha float64
	beta  float64

	// degenerate means min == max: every draw equals min and no entropy
	// is consumed.
	degenerate bool
}

// New validates the estimate and derives the Beta shape parameters.
func New(min, likely, max, shape float64) (*Sampler, error) {
	for _, v := range []float64{min, likely, max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: pert bounds must be finite", domain.ErrInvalidParameter)
		}
	}
	if min > likely {
		return nil, fmt.Errorf("%w: pert min %v exceeds likely %v", domain.ErrInvalidParameter, min, likely)
	}
	if likely > max {
		return nil, fmt.Errorf("%w: pert likely %v exceeds max %v", domain.ErrInvalidParameter, likely, max)
	}
	if shape <= 0 || math.IsNaN(shape) || math.IsInf(shape, 0) {
		return nil, fmt.Errorf("%w: pert shape must be > 0, got %v", domain.ErrInvalidParameter, shape)
	}

	s := &Sampler{
		min:    min,
		likely: likely,
		max:    max,
		shape:  shape,
	}

	if min == max {
		// Degenerate distribution: all mass at a single point. Handled here
		// so the alpha/beta derivation below never divides by a zero width.
		s.degenerate = true
		return s, nil
	}

	mean := (min + shape*likely + max) / (shape + 2)
	if mean == likely {
		s.alpha = shape/2 + 1
	} else {
		s.alpha = ((mean - min) * (2*likely - min - max)) / ((likely - mean) * (max - min))
	}
	s.beta = s.alpha * (max - mean) / (mean - min)

	return s, nil
}

// FromEstimate builds a sampler from a domain estimate.
func FromEstimate(e domain.RiskEstimate, shape float64) (*Sampler, error) {
	return New(e.Min, e.Likely, e.Max, shape)
}

// Rand draws a single deviate from src.
func (s *Sampler) Rand(src rand.Source) float64 {
	if s.degenerate {
		return s.min
	}
	d := distuv.Beta{Alpha: s.alpha, Beta: s.beta, Src: src}
	return s.min + d.Rand()*(s.max-s.min)
}

// Fill overwrites dst with independent deviates drawn from src.
func (s *Sampler) Fill(src rand.Source, dst []float64) {
	if s.degenerate {
		for i := range dst {
			dst[i] = s.min
		}
		return
	}
	d := distuv.Beta{Alpha: s.alpha, Beta: s.beta, Src: src}
	width := s.max - s.min
	for i := range dst {
		dst[i] = s.min + d.Rand()*width
	}
}

// Sample draws n independent deviates from src.
func (s *Sampler) Sample(src rand.Source, n int) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: sample count must be >= 0, got %d", domain.ErrInvalidParameter, n)
	}
	out := make([]float64, n)
	s.Fill(src, out)
	return out, nil
}

// Mean returns the analytic modified-PERT mean.
func (s *Sampler) Mean() float64 {
	if s.degenerate {
		return s.min
	}
	return (s.min + s.shape*s.likely + s.max) / (s.shape + 2)
}

// Bounds returns the support of the distribution.
func (s *Sampler) Bounds() (min, max float64) {
	return s.min, s.max
}
