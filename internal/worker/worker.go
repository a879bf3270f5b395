// Package worker provides async simulation processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/simulation"
)

// Worker runs simulation requests asynchronously from the EventBus.
type Worker struct {
	bus          domain.EventBus
	repo         domain.Repository
	cache        domain.Cache
	engine       *simulation.Engine
	policyEngine *policy.Engine
	processor    *assess.Processor
	outcomeTTL   time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *simulation.Engine, policyEngine *policy.Engine, processor *assess.Processor, outcomeTTL time.Duration) *Worker {
	if outcomeTTL <= 0 {
		outcomeTTL = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		repo:         repo,
		cache:        cache,
		engine:       engine,
		policyEngine: policyEngine,
		processor:    processor,
		outcomeTTL:   outcomeTTL,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing simulation requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSimulationRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSimulationRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSimulationRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.TenantID, msg)
}

// SimulationRequest is the message payload for async simulation.
// Either ScenarioID names a stored scenario, or Frequency and Magnitude
// carry the estimates inline.
type SimulationRequest struct {
	RequestID  string `json:"requestId,omitempty"`
	TenantID   string `json:"tenantId"`
	TraceID    string `json:"traceId,omitempty"`
	ScenarioID string `json:"scenarioId,omitempty"`

	Frequency *domain.RiskEstimate `json:"frequency,omitempty"`
	Magnitude *domain.RiskEstimate `json:"magnitude,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
	RunCount   int     `json:"runCount,omitempty"`
	Seed       *uint64 `json:"seed,omitempty"`
	Percentile float64 `json:"percentile,omitempty"`
}

// processRequest runs a simulation request through the pipeline.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var req SimulationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse simulation request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing simulation request",
		"scenario_id", req.ScenarioID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// 1. Resolve the estimates
	input, scenarioName, err := w.resolveInput(ctx, tenantID, traceID, &req)
	if err != nil {
		slog.Error("failed to resolve simulation input",
			"scenario_id", req.ScenarioID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// 2. Run the simulation
	outcome, err := w.engine.Run(ctx, input)
	if err != nil {
		slog.Error("simulation failed",
			"scenario_id", req.ScenarioID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// 3. Cache the outcome for retrieval; outcomes are never persisted
	if w.cache != nil {
		if err := w.cache.SetOutcome(ctx, tenantID, outcome, w.outcomeTTL); err != nil {
			slog.Error("failed to cache outcome",
				"run_id", outcome.RunID,
				"error", err,
			)
		}
	}

	// 4. Evaluate tolerance policies against the run metrics
	var policyResults []domain.PolicyResult
	if w.policyEngine != nil && w.policyEngine.PoliciesCount() > 0 {
		policyResults, err = w.policyEngine.EvaluateAll(ctx, &policy.EvaluateInput{
			TenantID:      tenantID,
			RunID:         outcome.RunID,
			ScenarioName:  scenarioName,
			Metrics:       outcome.Metrics,
			RunCount:      outcome.RunCount,
			FrequencyMean: input.Frequency.Mean(input.Config.Confidence),
		})
		if err != nil {
			slog.Error("policy evaluation failed",
				"run_id", outcome.RunID,
				"error", err,
			)
		}
	}

	// 5. Assess
	assessment := w.processor.Process(ctx, &assess.Input{
		TenantID:      tenantID,
		RunID:         outcome.RunID,
		TraceID:       traceID,
		PolicyResults: policyResults,
		SimulationMs:  outcome.Metadata.TotalMs,
		StartTime:     start,
	})

	// 6. Publish completed run summary
	summaryPayload, _ := json.Marshal(outcome.Summary())
	if err := w.bus.Publish(ctx, tenantID, domain.TopicSimulationCompleted, summaryPayload); err != nil {
		slog.Error("failed to publish run summary",
			"run_id", outcome.RunID,
			"error", err,
		)
	}

	// 7. If tolerance is breached, publish to breach topic
	if assess.ShouldAlert(assessment) {
		alertPayload, _ := json.Marshal(assessment)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicToleranceBreached, alertPayload); err != nil {
			slog.Error("failed to publish breach alert",
				"run_id", outcome.RunID,
				"error", err,
			)
		}
	}

	slog.Info("simulation processed",
		"run_id", outcome.RunID,
		"tenant_id", tenantID,
		"scenario_id", req.ScenarioID,
		"status", assessment.Status,
		"severity", assessment.Severity,
		"mean", outcome.Metrics.Mean,
		"value_at_risk", outcome.Metrics.ValueAtRisk,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// resolveInput builds the engine input from a stored scenario or from
// inline estimates.
func (w *Worker) resolveInput(ctx context.Context, tenantID, traceID string, req *SimulationRequest) (*simulation.Input, string, error) {
	input := &simulation.Input{
		TenantID:   tenantID,
		ScenarioID: req.ScenarioID,
		TraceID:    traceID,
		Config: domain.SimulationConfig{
			Confidence: req.Confidence,
			RunCount:   req.RunCount,
			Seed:       req.Seed,
			Percentile: req.Percentile,
		},
	}

	var scenarioName string
	if req.ScenarioID != "" {
		scenario, err := w.lookupScenario(ctx, tenantID, req.ScenarioID)
		if err != nil {
			return nil, "", err
		}
		scenarioName = scenario.Name
		input.Frequency = scenario.Frequency
		input.Magnitude = scenario.Magnitude
		if input.Config.Confidence == 0 {
			input.Config.Confidence = scenario.Confidence
		}
		if input.Config.RunCount == 0 {
			input.Config.RunCount = scenario.RunCount
		}
	} else if req.Frequency != nil && req.Magnitude != nil {
		input.Frequency = *req.Frequency
		input.Magnitude = *req.Magnitude
	} else {
		return nil, "", domain.ErrInvalidParameter
	}

	if input.Config.Confidence == 0 {
		input.Config.Confidence = domain.DefaultConfidence
	}
	if input.Config.RunCount == 0 {
		input.Config.RunCount = domain.DefaultRunCount
	}

	return input, scenarioName, nil
}

// lookupScenario checks the cache before the repository.
func (w *Worker) lookupScenario(ctx context.Context, tenantID, scenarioID string) (*domain.Scenario, error) {
	if w.cache != nil {
		if s, err := w.cache.GetScenario(ctx, tenantID, scenarioID); err == nil && s != nil {
			return s, nil
		}
	}

	scenario, err := w.repo.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		return nil, err
	}

	if w.cache != nil {
		_ = w.cache.SetScenario(ctx, tenantID, scenario, 5*time.Minute)
	}

	return scenario, nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
