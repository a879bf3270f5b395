package simulation

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ComputeExceedanceCurve builds the empirical loss-exceedance curve: losses
// sorted ascending, each paired with the probability that a simulated
// year's loss exceeds it. The probability is 1 minus the percent rank of
// the value, where equal values share their average rank (the pandas
// rank(pct=true) convention), so a unique maximum gets probability 0 and
// the minimum of an all-distinct sample gets 1 - 1/n.
func ComputeExceedanceCurve(sample []float64) domain.ExceedanceCurve {
	n := len(sample)
	if n == 0 {
		return nil
	}

	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	curve := make(domain.ExceedanceCurve, n)
	for i := 0; i < n; {
		// Walk the tie group and assign its average 1-based rank.
		j := i
		for j < n && sorted[j] == sorted[i] {
			j++
		}
		avgRank := float64(i+1+j) / 2 // mean of ranks i+1 .. j
		prob := 1 - avgRank/float64(n)
		if prob < 0 {
			prob = 0
		}
		for k := i; k < j; k++ {
			curve[k] = domain.ExceedancePoint{Loss: sorted[k], Probability: prob}
		}
		i = j
	}

	return curve
}
