package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func seedPtr(v uint64) *uint64 { return &v }

func testInput(seed uint64) *Input {
	return &Input{
		TenantID:  "tenant-001",
		Frequency: domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
		Magnitude: domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
		Config: domain.SimulationConfig{
			Confidence: 4,
			RunCount:   10000,
			Seed:       seedPtr(seed),
		},
	}
}

func TestRunEndToEnd(t *testing.T) {
	engine := NewEngine("test-v1")
	out, err := engine.Run(context.Background(), testInput(42))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(out.ALE) != 10000 || len(out.CrudeALE) != 10000 || len(out.FrequencySample) != 10000 {
		t.Fatalf("expected 10000-length samples, got %d/%d/%d",
			len(out.ALE), len(out.CrudeALE), len(out.FrequencySample))
	}
	if out.Seed != 42 {
		t.Errorf("expected reported seed 42, got %d", out.Seed)
	}

	for i, v := range out.ALE {
		if v < 0 || math.IsNaN(v) {
			t.Fatalf("ALE[%d] invalid: %v", i, v)
		}
	}

	// Crude ALE mean should sit near the product of the analytic PERT
	// means: 4.5 events/year x 4333.33 per event = 19500.
	if math.Abs(out.CrudeMetrics.Mean-19500)/19500 > 0.10 {
		t.Errorf("crude ALE mean %v too far from 19500", out.CrudeMetrics.Mean)
	}

	// Compounded ALE mean is lower because event counts are floored, but
	// must stay in the same ballpark.
	if out.Metrics.Mean < 14000 || out.Metrics.Mean > 22000 {
		t.Errorf("ALE mean %v outside expected band", out.Metrics.Mean)
	}

	if out.Metrics.ValueAtRisk <= out.Metrics.Mean {
		t.Errorf("expected VaR %v above mean %v", out.Metrics.ValueAtRisk, out.Metrics.Mean)
	}

	if out.Metadata.EventsDrawn == 0 {
		t.Error("expected a nonzero compounding draw count")
	}
}

func TestRunReproducibleAcrossWorkerCounts(t *testing.T) {
	engine := NewEngine("test-v1")

	run := func(workers int) *domain.Outcome {
		input := testInput(1234)
		input.Config.RunCount = 2000
		input.Config.MaxWorkers = workers
		out, err := engine.Run(context.Background(), input)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return out
	}

	serial := run(1)
	parallel := run(8)
	again := run(8)

	for i := range serial.ALE {
		if serial.ALE[i] != parallel.ALE[i] {
			t.Fatalf("ALE[%d] differs between worker counts: %v vs %v", i, serial.ALE[i], parallel.ALE[i])
		}
		if parallel.ALE[i] != again.ALE[i] {
			t.Fatalf("ALE[%d] differs between identical runs: %v vs %v", i, parallel.ALE[i], again.ALE[i])
		}
		if serial.CrudeALE[i] != parallel.CrudeALE[i] {
			t.Fatalf("CrudeALE[%d] differs between worker counts", i)
		}
	}
}

func TestRunZeroFrequency(t *testing.T) {
	engine := NewEngine("test-v1")
	input := &Input{
		TenantID:  "tenant-001",
		Frequency: domain.RiskEstimate{Min: 0, Likely: 0, Max: 0},
		Magnitude: domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
		Config: domain.SimulationConfig{
			Confidence: 4,
			RunCount:   500,
			Seed:       seedPtr(7),
		},
	}

	out, err := engine.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i, v := range out.ALE {
		if v != 0 {
			t.Fatalf("ALE[%d]: expected exactly 0 for zero frequency, got %v", i, v)
		}
	}
	for i, v := range out.CrudeALE {
		if v != 0 {
			t.Fatalf("CrudeALE[%d]: expected 0 (frequency factor is 0), got %v", i, v)
		}
	}
	if out.Metrics.Mean != 0 || out.Metrics.ValueAtRisk != 0 {
		t.Errorf("expected all-zero metrics, got %+v", out.Metrics)
	}
}

func TestRunDegenerateMagnitude(t *testing.T) {
	engine := NewEngine("test-v1")
	input := &Input{
		TenantID:  "tenant-001",
		Frequency: domain.RiskEstimate{Min: 3, Likely: 3, Max: 3},
		Magnitude: domain.RiskEstimate{Min: 500, Likely: 500, Max: 500},
		Config: domain.SimulationConfig{
			Confidence: 4,
			RunCount:   100,
			Seed:       seedPtr(7),
		},
	}

	out, err := engine.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i, v := range out.ALE {
		if v != 1500 {
			t.Fatalf("ALE[%d]: expected exactly 3*500, got %v", i, v)
		}
	}
}

func TestRunInvalidInputs(t *testing.T) {
	engine := NewEngine("test-v1")
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"OutOfOrderEstimate", func(in *Input) {
			in.Magnitude = domain.RiskEstimate{Min: 9, Likely: 4, Max: 2}
		}},
		{"NegativeFrequencyMin", func(in *Input) {
			in.Frequency = domain.RiskEstimate{Min: -1, Likely: 2, Max: 4}
		}},
		{"ZeroShape", func(in *Input) {
			in.Config.Confidence = 0
		}},
		{"ZeroRunCount", func(in *Input) {
			in.Config.RunCount = 0
		}},
		{"PercentileAboveOne", func(in *Input) {
			in.Config.Percentile = 1.5
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := testInput(1)
			tc.mutate(input)
			_, err := engine.Run(ctx, input)
			if !errors.Is(err, domain.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestYearSeedDisjoint(t *testing.T) {
	seen := make(map[uint64]bool)
	for year := uint64(0); year < 100000; year++ {
		s := yearSeed(99, year)
		if seen[s] {
			t.Fatalf("duplicate sub-stream seed at year %d", year)
		}
		seen[s] = true
	}
}
