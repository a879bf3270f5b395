// Benchmark tool for testing Kestrel's simulation accuracy and latency.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 200
//
// This tool:
//   1. Generates randomized PERT scenarios (frequency and magnitude triples)
//   2. Sends each scenario to Kestrel for synchronous simulation
//   3. Compares the simulated mean with the analytic PERT product mean
//   4. Reports relative error distribution and latency percentiles
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SimulateRequest is the Kestrel API request format
type SimulateRequest struct {
	Frequency  Estimate `json:"frequency"`
	Magnitude  Estimate `json:"magnitude"`
	Confidence float64  `json:"confidence,omitempty"`
	RunCount   int      `json:"runCount,omitempty"`
	Seed       *uint64  `json:"seed,omitempty"`
}

type Estimate struct {
	Min    float64 `json:"min"`
	Likely float64 `json:"likely"`
	Max    float64 `json:"max"`
}

// SimulateResponse is the Kestrel API response format
type SimulateResponse struct {
	RunID    string `json:"runId"`
	Seed     uint64 `json:"seed"`
	RunCount int    `json:"runCount"`
	Metrics  struct {
		Mean        float64 `json:"mean"`
		MinLoss     float64 `json:"minLoss"`
		MaxLoss     float64 `json:"maxLoss"`
		ValueAtRisk float64 `json:"valueAtRisk"`
	} `json:"metrics"`
}

// scenario pairs a generated request with its analytic expected mean.
type scenario struct {
	req      SimulateRequest
	expected float64
}

// Metrics tracks benchmark results
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	Within5Pct     int64
	Within10Pct    int64

	mu        sync.Mutex
	relErrors []float64
	latencies []time.Duration
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	requests := flag.Int("requests", 200, "Number of simulation requests")
	runCount := flag.Int("runs", 50000, "Simulated years per request")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	confidence := flag.Float64("confidence", 4.0, "PERT confidence shape")
	seed := flag.Int64("seed", 1, "Seed for scenario generation")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Simulation Accuracy & Latency      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Run Count:   %d\n", *runCount)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Confidence:  %.1f\n", *confidence)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate scenarios
	scenarios := generateScenarios(*requests, *runCount, *confidence, *seed)
	fmt.Printf("✓ Generated %d scenarios\n", len(scenarios))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(scenarios, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateScenarios builds randomized PERT triples spanning several orders
// of magnitude, with the analytic product mean attached for comparison.
func generateScenarios(count, runCount int, confidence float64, seed int64) []scenario {
	rng := rand.New(rand.NewSource(seed))
	scenarios := make([]scenario, 0, count)

	for i := 0; i < count; i++ {
		// Frequency: 0 to a few dozen events per year
		fMin := rng.Float64() * 5
		fLikely := fMin + rng.Float64()*10
		fMax := fLikely + rng.Float64()*20

		// Magnitude: hundreds to millions per event
		mMin := 100 + rng.Float64()*10000
		mLikely := mMin + rng.Float64()*100000
		mMax := mLikely + rng.Float64()*1000000

		reqSeed := rng.Uint64()
		req := SimulateRequest{
			Frequency:  Estimate{Min: fMin, Likely: fLikely, Max: fMax},
			Magnitude:  Estimate{Min: mMin, Likely: mLikely, Max: mMax},
			Confidence: confidence,
			RunCount:   runCount,
			Seed:       &reqSeed,
		}

		// Modified-PERT mean: (min + shape*likely + max) / (shape + 2).
		// Frequency and magnitude draws are independent, so the expected
		// annual loss is the product of the two means.
		fMean := (fMin + confidence*fLikely + fMax) / (confidence + 2)
		mMean := (mMin + confidence*mLikely + mMax) / (confidence + 2)

		scenarios = append(scenarios, scenario{req: req, expected: fMean * mMean})
	}

	return scenarios
}

func runBenchmark(scenarios []scenario, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan scenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for sc := range work {
				start := time.Now()
				result, err := simulate(client, baseURL, tenantID, sc.req)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				relErr := 0.0
				if sc.expected != 0 {
					relErr = (result.Metrics.Mean - sc.expected) / sc.expected
				}
				absErr := relErr
				if absErr < 0 {
					absErr = -absErr
				}

				if absErr <= 0.05 {
					atomic.AddInt64(&metrics.Within5Pct, 1)
				}
				if absErr <= 0.10 {
					atomic.AddInt64(&metrics.Within10Pct, 1)
				}

				metrics.mu.Lock()
				metrics.relErrors = append(metrics.relErrors, absErr)
				metrics.latencies = append(metrics.latencies, elapsed)
				metrics.mu.Unlock()

				if verbose {
					status := "✓"
					if absErr > 0.10 {
						status = "✗"
					}
					fmt.Printf("%s %s | expected: %14.2f | simulated: %14.2f | err: %+6.2f%% | %v\n",
						status,
						result.RunID[:8],
						sc.expected,
						result.Metrics.Mean,
						relErr*100,
						elapsed.Round(time.Millisecond),
					)
				}
			}
		}()
	}

	for _, sc := range scenarios {
		work <- sc
	}
	close(work)

	wg.Wait()

	return metrics
}

func simulate(client *http.Client, baseURL, tenantID string, req SimulateRequest) (*SimulateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result SimulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 REQUEST STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	ok := m.TotalProcessed - m.TotalErrors
	if ok == 0 {
		fmt.Println("\n   No successful requests - nothing to report.")
		return
	}

	// Accuracy: how close the simulated mean tracks the analytic mean
	sort.Float64s(m.relErrors)
	sumErr := 0.0
	for _, e := range m.relErrors {
		sumErr += e
	}
	meanErr := sumErr / float64(len(m.relErrors))
	maxErr := m.relErrors[len(m.relErrors)-1]
	medianErr := m.relErrors[len(m.relErrors)/2]

	fmt.Printf("\n🎯 ACCURACY (simulated mean vs analytic PERT mean)\n")
	fmt.Printf("   Mean |error|:     %.3f%%\n", meanErr*100)
	fmt.Printf("   Median |error|:   %.3f%%\n", medianErr*100)
	fmt.Printf("   Max |error|:      %.3f%%\n", maxErr*100)
	fmt.Printf("   Within 5%%:        %d / %d (%.1f%%)\n", m.Within5Pct, ok, 100*float64(m.Within5Pct)/float64(ok))
	fmt.Printf("   Within 10%%:       %d / %d (%.1f%%)\n", m.Within10Pct, ok, 100*float64(m.Within10Pct)/float64(ok))

	// Latency percentiles
	sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
	pct := func(p float64) time.Duration {
		idx := int(p * float64(len(m.latencies)-1))
		return m.latencies[idx]
	}
	var sumLat time.Duration
	for _, l := range m.latencies {
		sumLat += l
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Avg Latency:      %v\n", (sumLat / time.Duration(len(m.latencies))).Round(time.Millisecond))
	fmt.Printf("   p50 Latency:      %v\n", pct(0.50).Round(time.Millisecond))
	fmt.Printf("   p95 Latency:      %v\n", pct(0.95).Round(time.Millisecond))
	fmt.Printf("   p99 Latency:      %v\n", pct(0.99).Round(time.Millisecond))
	fmt.Printf("   Throughput:       %.2f sims/sec\n", float64(m.TotalProcessed)/duration.Seconds())

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if meanErr <= 0.02 {
		fmt.Println("   ✅ Simulated means track the analytic means closely")
	} else if meanErr <= 0.05 {
		fmt.Println("   ⚠️  Moderate sampling error - consider raising -runs")
	} else {
		fmt.Println("   ❌ Large sampling error - check run count and estimates")
	}

	fmt.Println()
}
