package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestComputeMetricsBasics(t *testing.T) {
	sample := []float64{4, 1, 3, 2}

	m, err := ComputeMetrics(sample, 0.5)
	if err != nil {
		t.Fatalf("ComputeMetrics failed: %v", err)
	}

	if m.MinLoss != 1 || m.MaxLoss != 4 {
		t.Errorf("expected min 1 max 4, got %v/%v", m.MinLoss, m.MaxLoss)
	}
	if m.Mean != 2.5 {
		t.Errorf("expected mean 2.5, got %v", m.Mean)
	}
	// R-7 median of {1,2,3,4}
	if m.ValueAtRisk != 2.5 {
		t.Errorf("expected median 2.5, got %v", m.ValueAtRisk)
	}
}

func TestQuantileConvention(t *testing.T) {
	// Fixtures match numpy.percentile's default linear interpolation.
	sorted := []float64{1, 2, 3, 4}

	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{0.975, 3.925},
		{1, 4},
	}

	for _, tc := range cases {
		got := quantileSorted(sorted, tc.p)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("quantile(%v): expected %v, got %v", tc.p, tc.want, got)
		}
	}
}

func TestPercentileExtremes(t *testing.T) {
	sample := []float64{10, 50, 20, 90, 30}

	lo, err := ComputeMetrics(sample, 0)
	if err != nil {
		t.Fatalf("ComputeMetrics failed: %v", err)
	}
	if lo.ValueAtRisk != 10 {
		t.Errorf("percentile 0: expected minimum 10, got %v", lo.ValueAtRisk)
	}

	hi, err := ComputeMetrics(sample, 1)
	if err != nil {
		t.Fatalf("ComputeMetrics failed: %v", err)
	}
	if hi.ValueAtRisk != 90 {
		t.Errorf("percentile 1: expected maximum 90, got %v", hi.ValueAtRisk)
	}
}

func TestComputeMetricsValidation(t *testing.T) {
	if _, err := ComputeMetrics(nil, 0.5); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for empty sample, got %v", err)
	}
	if _, err := ComputeMetrics([]float64{1}, -0.1); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for negative percentile, got %v", err)
	}
	if _, err := ComputeMetrics([]float64{1}, 1.1); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for percentile > 1, got %v", err)
	}
}

func TestExceedanceCurveDistinctValues(t *testing.T) {
	curve := ComputeExceedanceCurve([]float64{40, 10, 30, 20})

	if len(curve) != 4 {
		t.Fatalf("expected 4 points, got %d", len(curve))
	}

	// Ascending by loss, probability 1 - rank/n.
	wantLoss := []float64{10, 20, 30, 40}
	wantProb := []float64{0.75, 0.5, 0.25, 0}

	for i, pt := range curve {
		if pt.Loss != wantLoss[i] {
			t.Errorf("point %d: expected loss %v, got %v", i, wantLoss[i], pt.Loss)
		}
		if math.Abs(pt.Probability-wantProb[i]) > 1e-12 {
			t.Errorf("point %d: expected probability %v, got %v", i, wantProb[i], pt.Probability)
		}
	}
}

func TestExceedanceCurveTiesShareAverageRank(t *testing.T) {
	curve := ComputeExceedanceCurve([]float64{2, 1, 2, 3})

	// Ranks: 1 for the min, {2,3} average 2.5 for the tie, 4 for the max.
	wantProb := []float64{0.75, 0.375, 0.375, 0}
	for i, pt := range curve {
		if math.Abs(pt.Probability-wantProb[i]) > 1e-12 {
			t.Errorf("point %d: expected probability %v, got %v", i, wantProb[i], pt.Probability)
		}
	}
}

func TestExceedanceCurveMonotone(t *testing.T) {
	engine := NewEngine("test-v1")
	out, err := engine.Run(context.Background(), testInput(5))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	curve := out.Exceedance
	n := float64(len(curve))

	for i := 1; i < len(curve); i++ {
		if curve[i].Loss < curve[i-1].Loss {
			t.Fatalf("losses not ascending at %d", i)
		}
		if curve[i].Probability > curve[i-1].Probability {
			t.Fatalf("probability increased at %d: %v -> %v", i, curve[i-1].Probability, curve[i].Probability)
		}
	}

	if math.Abs(curve[0].Probability-(1-1/n)) > 1e-9 {
		t.Errorf("first probability %v, expected about %v", curve[0].Probability, 1-1/n)
	}
	if curve[len(curve)-1].Probability != 0 {
		t.Errorf("last probability %v, expected 0 for the unique maximum", curve[len(curve)-1].Probability)
	}
}
