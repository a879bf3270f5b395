package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/simulation"
)

func seedPtr(v uint64) *uint64 { return &v }

func TestWorker(t *testing.T) {
	// Create channel bus
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	lruCache := cache.NewLRUCache(100)
	defer lruCache.Close()

	engine := simulation.NewEngine("test-v1")
	policyEngine, _ := policy.NewEngine(5)
	defer policyEngine.Close()
	processor := assess.NewProcessor()

	worker := NewWorker(eventBus, nil, lruCache, engine, policyEngine, processor, time.Hour)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessSimulationRequest", func(t *testing.T) {
		// Create fresh worker for this test
		w := NewWorker(eventBus, nil, lruCache, engine, policyEngine, processor, time.Hour)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track completed run summaries
		var completedReceived atomic.Bool
		var summaryPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicSimulationCompleted, func(ctx context.Context, msg *domain.Message) error {
			summaryPayload = msg.Payload
			completedReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		// Publish a simulation request with inline estimates
		req := SimulationRequest{
			TenantID:  "tenant-test",
			TraceID:   "trace-001",
			Frequency: &domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
			Magnitude: &domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
			RunCount:  1000,
			Seed:      seedPtr(42),
		}

		payload, _ := json.Marshal(req)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicSimulationRequested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(500 * time.Millisecond)

		if !completedReceived.Load() {
			t.Fatal("expected run summary to be published")
		}

		var summary domain.OutcomeSummary
		if err := json.Unmarshal(summaryPayload, &summary); err != nil {
			t.Fatalf("failed to parse run summary: %v", err)
		}

		if summary.RunID == "" {
			t.Error("expected run ID on summary")
		}
		if summary.Seed != 42 {
			t.Errorf("expected seed 42, got %d", summary.Seed)
		}
		if summary.RunCount != 1000 {
			t.Errorf("expected run count 1000, got %d", summary.RunCount)
		}
		if summary.Metrics.Mean <= 0 {
			t.Errorf("expected positive mean, got %v", summary.Metrics.Mean)
		}

		// Outcome must be retrievable from the cache
		out, err := lruCache.GetOutcome(context.Background(), "tenant-test", summary.RunID)
		if err != nil {
			t.Fatalf("GetOutcome failed: %v", err)
		}
		if out == nil {
			t.Fatal("expected cached outcome for completed run")
		}
		if out.Metrics != summary.Metrics {
			t.Errorf("cached metrics %+v differ from summary %+v", out.Metrics, summary.Metrics)
		}
	})

	t.Run("BreachPublished", func(t *testing.T) {
		// Policy engine with an appetite every run here will exceed
		breachEngine, _ := policy.NewEngine(5)
		defer breachEngine.Close()

		one := 1.0
		breachEngine.LoadPolicy(&domain.TolerancePolicy{
			ID:         "tiny-appetite",
			Expression: "value_at_risk > 1.0 ? 1.0 : 0.0",
			Bands: []domain.PolicyBand{
				{LowerLimit: &one, UpperLimit: nil, Severity: domain.SeverityBreach, Reason: "VaR above appetite"},
			},
			Enabled: true,
		})

		w := NewWorker(eventBus, nil, lruCache, engine, breachEngine, processor, time.Hour)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track breach alerts
		var alertReceived atomic.Bool
		var alertPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicToleranceBreached, func(ctx context.Context, msg *domain.Message) error {
			alertPayload = msg.Payload
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		req := SimulationRequest{
			TenantID:  "tenant-alert",
			Frequency: &domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
			Magnitude: &domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
			RunCount:  1000,
			Seed:      seedPtr(7),
		}

		payload, _ := json.Marshal(req)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicSimulationRequested, payload)

		time.Sleep(500 * time.Millisecond)

		if !alertReceived.Load() {
			t.Fatal("expected breach alert to be published")
		}

		var assessment domain.Assessment
		if err := json.Unmarshal(alertPayload, &assessment); err != nil {
			t.Fatalf("failed to parse assessment: %v", err)
		}
		if assessment.Severity != domain.SeverityBreach {
			t.Errorf("expected .breach severity, got %s", assessment.Severity)
		}
		if assessment.Status != domain.StatusAlert {
			t.Errorf("expected ALRT status, got %s", assessment.Status)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, lruCache, engine, policyEngine, processor, time.Hour)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestSimulationRequestParsing(t *testing.T) {
	req := SimulationRequest{
		RequestID:  "req-123",
		TenantID:   "tenant-001",
		TraceID:    "trace-456",
		ScenarioID: "scn-001",
		Confidence: 8,
		RunCount:   50000,
		Seed:       seedPtr(99),
		Percentile: 0.99,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed SimulationRequest
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.ScenarioID != req.ScenarioID {
		t.Errorf("expected ScenarioID '%s', got '%s'", req.ScenarioID, parsed.ScenarioID)
	}
	if parsed.Seed == nil || *parsed.Seed != 99 {
		t.Errorf("expected Seed 99, got %v", parsed.Seed)
	}
	if parsed.Percentile != req.Percentile {
		t.Errorf("expected Percentile %v, got %v", req.Percentile, parsed.Percentile)
	}
}
