// Package simulation implements the FAIR Monte Carlo engine: frequency
// simulation, frequency-severity compounding, and risk metrics over the
// resulting annual-loss-exposure sample.
package simulation

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/rand"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pert"
)

var tracer = otel.Tracer("kestrel-engine")

// Engine runs FAIR simulations. Stateless apart from its version string;
// safe for concurrent use.
type Engine struct {
	Version string
}

// NewEngine creates a simulation engine.
func NewEngine(version string) *Engine {
	return &Engine{Version: version}
}

// Input describes one simulation run.
type Input struct {
	TenantID   string
	ScenarioID string
	TraceID    string

	Frequency domain.RiskEstimate // events per year, min >= 0
	Magnitude domain.RiskEstimate // loss per event

	Config domain.SimulationConfig
}

// Run executes the full pipeline: frequency draws, severity compounding,
// metrics, exceedance curve. All validation happens before the first
// random draw.
func (e *Engine) Run(ctx context.Context, input *Input) (*domain.Outcome, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "simulation.Run")
	defer span.End()

	if err := input.Config.Validate(); err != nil {
		return nil, err
	}
	if err := input.Frequency.Validate(); err != nil {
		return nil, fmt.Errorf("frequency estimate: %w", err)
	}
	if input.Frequency.Min < 0 {
		return nil, fmt.Errorf("%w: frequency min must be >= 0, got %v", domain.ErrInvalidParameter, input.Frequency.Min)
	}
	if err := input.Magnitude.Validate(); err != nil {
		return nil, fmt.Errorf("magnitude estimate: %w", err)
	}

	freqSampler, err := pert.FromEstimate(input.Frequency, input.Config.Confidence)
	if err != nil {
		return nil, err
	}
	magSampler, err := pert.FromEstimate(input.Magnitude, input.Config.Confidence)
	if err != nil {
		return nil, err
	}

	seed, err := resolveSeed(input.Config.Seed)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("run_count", input.Config.RunCount),
		attribute.Int64("seed", int64(seed)),
	)

	// Frequency simulation: one continuous events-per-year draw per
	// simulated year, from the base-seed stream.
	freqStart := time.Now()
	frequency := make([]float64, input.Config.RunCount)
	freqSampler.Fill(rand.NewSource(seed), frequency)
	freqMs := time.Since(freqStart).Milliseconds()

	// Severity compounding.
	compoundStart := time.Now()
	workers := input.Config.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	crude, ale, events := compound(frequency, magSampler, seed, workers)
	compoundMs := time.Since(compoundStart).Milliseconds()

	// Metrics over both ALE variants.
	metricsStart := time.Now()
	p := input.Config.VaRPercentile()
	metrics, err := ComputeMetrics(ale, p)
	if err != nil {
		return nil, err
	}
	crudeMetrics, err := ComputeMetrics(crude, p)
	if err != nil {
		return nil, err
	}
	curve := ComputeExceedanceCurve(ale)
	metricsMs := time.Since(metricsStart).Milliseconds()

	return &domain.Outcome{
		RunID:           uuid.New().String(),
		TenantID:        input.TenantID,
		ScenarioID:      input.ScenarioID,
		Seed:            seed,
		RunCount:        input.Config.RunCount,
		FrequencySample: frequency,
		CrudeALE:        crude,
		ALE:             ale,
		Metrics:         metrics,
		CrudeMetrics:    crudeMetrics,
		Exceedance:      curve,
		Timestamp:       time.Now().UTC(),
		Metadata: domain.OutcomeMetadata{
			TraceID:       input.TraceID,
			FrequencyMs:   freqMs,
			CompoundMs:    compoundMs,
			MetricsMs:     metricsMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EventsDrawn:   events,
			Workers:       workers,
			EngineVersion: e.Version,
		},
	}, nil
}

// compound produces both ALE variants from a frequency sample. Each year
// owns a sub-stream derived from (seed, year index), so the output is
// identical for any worker count. The crude draw is the first draw of the
// year's stream; the floor(f) compounding draws follow it.
func compound(frequency []float64, magnitude *pert.Sampler, seed uint64, workers int) (crude, ale []float64, events int64) {
	crude = make([]float64, len(frequency))
	ale = make([]float64, len(frequency))

	var drawn int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, f := range frequency {
		wg.Add(1)
		go func(year int, f float64) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			src := rand.NewSource(yearSeed(seed, uint64(year)))

			crude[year] = f * magnitude.Rand(src)

			k := int(math.Floor(f))
			if k < 0 {
				k = 0
			}
			var sum float64
			for j := 0; j < k; j++ {
				sum += magnitude.Rand(src)
			}
			ale[year] = sum
			atomic.AddInt64(&drawn, int64(k))
		}(i, f)
	}

	wg.Wait()
	return crude, ale, atomic.LoadInt64(&drawn)
}

// yearSeed derives a per-year stream seed with a SplitMix64 step, keeping
// sub-streams disjoint from each other and from the base frequency stream.
func yearSeed(seed, year uint64) uint64 {
	z := seed + (year+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// resolveSeed uses the configured seed or draws one from the OS entropy
// pool so the run can still be replayed afterwards.
func resolveSeed(configured *uint64) (uint64, error) {
	if configured != nil {
		return *configured, nil
	}
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to draw run seed: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
