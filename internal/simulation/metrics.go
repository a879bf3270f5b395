package simulation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ComputeMetrics summarizes an annual-loss-exposure sample. The value at
// risk is the empirical quantile at percentile p, computed by linear
// interpolation between order statistics (the R-7 convention shared by
// numpy and pandas defaults): h = (n-1)p, interpolate between the
// surrounding order statistics. p=0 yields the minimum and p=1 the maximum.
func ComputeMetrics(sample []float64, percentile float64) (domain.RiskMetrics, error) {
	if len(sample) == 0 {
		return domain.RiskMetrics{}, fmt.Errorf("%w: metrics require a non-empty sample", domain.ErrInvalidParameter)
	}
	if percentile < 0 || percentile > 1 || math.IsNaN(percentile) {
		return domain.RiskMetrics{}, fmt.Errorf("%w: percentile must be in [0,1], got %v", domain.ErrInvalidParameter, percentile)
	}

	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	return domain.RiskMetrics{
		MinLoss:     floats.Min(sorted),
		MaxLoss:     floats.Max(sorted),
		Mean:        stat.Mean(sorted, nil),
		ValueAtRisk: quantileSorted(sorted, percentile),
		Percentile:  percentile,
	}, nil
}

// quantileSorted computes the R-7 linear-interpolation quantile of an
// ascending-sorted sample.
func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
