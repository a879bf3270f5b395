package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/portfolio"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/simulation"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	engine       *simulation.Engine
	policyEngine *policy.Engine
	processor    *assess.Processor
	portfolio    *portfolio.Service
	version      string
	outcomeTTL   time.Duration
	defaults     domain.SimulationConfig
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *simulation.Engine, policyEngine *policy.Engine, processor *assess.Processor, portfolioSvc *portfolio.Service, version string, outcomeTTL time.Duration, defaults domain.SimulationConfig) *Handler {
	if outcomeTTL <= 0 {
		outcomeTTL = time.Hour
	}
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		engine:       engine,
		policyEngine: policyEngine,
		processor:    processor,
		portfolio:    portfolioSvc,
		version:      version,
		outcomeTTL:   outcomeTTL,
		defaults:     defaults,
	}
}

// SimulateRequest is the request body for POST /simulate. Estimates may be
// given inline, or scenarioId may reference a stored scenario.
type SimulateRequest struct {
	ScenarioID string `json:"scenarioId,omitempty"`

	Frequency *domain.RiskEstimate `json:"frequency,omitempty"`
	Magnitude *domain.RiskEstimate `json:"magnitude,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
	RunCount   int     `json:"runCount,omitempty"`
	Seed       *uint64 `json:"seed,omitempty"`
	Percentile float64 `json:"percentile,omitempty"`
	MaxWorkers int     `json:"maxWorkers,omitempty"`
}

// SimulateResponse is the response for POST /simulate.
type SimulateResponse struct {
	RunID        string                     `json:"runId"`
	ScenarioID   string                     `json:"scenarioId,omitempty"`
	Seed         uint64                     `json:"seed"`
	RunCount     int                        `json:"runCount"`
	Metrics      domain.RiskMetrics         `json:"metrics"`
	CrudeMetrics domain.RiskMetrics         `json:"crudeMetrics"`
	Assessment   *domain.AssessmentResponse `json:"assessment,omitempty"`
	Metadata     domain.OutcomeMetadata     `json:"metadata"`
}

// Simulate handles POST /simulate: runs a full synchronous simulation,
// evaluates tolerance policies, and caches the outcome for retrieval.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	input := &simulation.Input{
		TenantID:   tenantID,
		ScenarioID: req.ScenarioID,
		TraceID:    traceID,
		Config: domain.SimulationConfig{
			Confidence: req.Confidence,
			RunCount:   req.RunCount,
			Seed:       req.Seed,
			Percentile: req.Percentile,
			MaxWorkers: req.MaxWorkers,
		},
	}

	var scenarioName string
	switch {
	case req.ScenarioID != "":
		scenario, err := h.lookupScenario(ctx, tenantID, req.ScenarioID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "scenario not found",
			})
			return
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
	case req.Frequency != nil && req.Magnitude != nil:
		input.Frequency = *req.Frequency
		input.Magnitude = *req.Magnitude
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "either scenarioId or both frequency and magnitude are required",
		})
		return
	}

	h.applyDefaults(&input.Config)

	outcome, err := h.engine.Run(ctx, input)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidParameter) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("simulation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "simulation failed",
		})
		return
	}

	// Cache the outcome so the sample and curve stay retrievable.
	if h.cache != nil {
		if err := h.cache.SetOutcome(ctx, tenantID, outcome, h.outcomeTTL); err != nil {
			slog.Error("failed to cache outcome", "run_id", outcome.RunID, "error", err)
		}
	}

	// Evaluate tolerance policies against the run metrics.
	var policyResults []domain.PolicyResult
	if h.policyEngine != nil && h.policyEngine.PoliciesCount() > 0 {
		policyResults, err = h.policyEngine.EvaluateAll(ctx, &policy.EvaluateInput{
			TenantID:      tenantID,
			RunID:         outcome.RunID,
			ScenarioName:  scenarioName,
			Metrics:       outcome.Metrics,
			RunCount:      outcome.RunCount,
			FrequencyMean: input.Frequency.Mean(input.Config.Confidence),
		})
		if err != nil {
			slog.Error("policy evaluation failed", "run_id", outcome.RunID, "error", err)
		}
	}

	resp := SimulateResponse{
		RunID:        outcome.RunID,
		ScenarioID:   outcome.ScenarioID,
		Seed:         outcome.Seed,
		RunCount:     outcome.RunCount,
		Metrics:      outcome.Metrics,
		CrudeMetrics: outcome.CrudeMetrics,
		Metadata:     outcome.Metadata,
	}

	if len(policyResults) > 0 {
		assessment := h.processor.Process(ctx, &assess.Input{
			TenantID:      tenantID,
			RunID:         outcome.RunID,
			TraceID:       traceID,
			PolicyResults: policyResults,
			SimulationMs:  outcome.Metadata.TotalMs,
			StartTime:     start,
		})
		resp.Assessment = assessment.ToResponse()

		if assess.ShouldAlert(assessment) && h.bus != nil {
			payload, _ := json.Marshal(assessment)
			if err := h.bus.Publish(ctx, tenantID, domain.TopicToleranceBreached, payload); err != nil {
				slog.Error("failed to publish breach alert", "run_id", outcome.RunID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRun retrieves a cached run summary by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	outcome := h.loadOutcome(w, r)
	if outcome == nil {
		return
	}
	writeJSON(w, http.StatusOK, outcome.Summary())
}

// GetRunExceedance returns the loss exceedance curve of a cached run.
func (h *Handler) GetRunExceedance(w http.ResponseWriter, r *http.Request) {
	outcome := h.loadOutcome(w, r)
	if outcome == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId":      outcome.RunID,
		"exceedance": outcome.Exceedance,
	})
}

// GetRunSample returns the raw per-year samples of a cached run.
func (h *Handler) GetRunSample(w http.ResponseWriter, r *http.Request) {
	outcome := h.loadOutcome(w, r)
	if outcome == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId":           outcome.RunID,
		"frequencySample": outcome.FrequencySample,
		"crudeAle":        outcome.CrudeALE,
		"ale":             outcome.ALE,
	})
}

// loadOutcome fetches the outcome for the {id} URL param, writing the
// error response itself when the run is unknown or expired.
func (h *Handler) loadOutcome(w http.ResponseWriter, r *http.Request) *domain.Outcome {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return nil
	}

	if h.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "cache not available",
		})
		return nil
	}

	outcome, err := h.cache.GetOutcome(ctx, tenantID, runID)
	if err != nil {
		slog.Error("failed to get outcome", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load run",
		})
		return nil
	}
	if outcome == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found or expired",
		})
		return nil
	}

	return outcome
}

// PortfolioRequest is the request body for POST /portfolio/simulate.
type PortfolioRequest struct {
	ScenarioIDs []string `json:"scenarioIds"`
	Confidence  float64  `json:"confidence,omitempty"`
	RunCount    int      `json:"runCount,omitempty"`
	Seed        *uint64  `json:"seed,omitempty"`
	Percentile  float64  `json:"percentile,omitempty"`
}

// SimulatePortfolio handles POST /portfolio/simulate: aggregate annual
// loss across a set of stored scenarios.
func (h *Handler) SimulatePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.portfolio == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "portfolio service not available",
		})
		return
	}

	var req PortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	cfg := domain.SimulationConfig{
		Confidence: req.Confidence,
		RunCount:   req.RunCount,
		Seed:       req.Seed,
		Percentile: req.Percentile,
	}
	h.applyDefaults(&cfg)

	result, err := h.portfolio.Aggregate(ctx, tenantID, req.ScenarioIDs, cfg)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidParameter) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "scenario not found",
			})
			return
		}
		slog.Error("portfolio simulation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "portfolio simulation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListScenarios returns all scenarios for the tenant.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	scenarios, err := h.repo.ListScenarios(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list scenarios", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list scenarios",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": scenarios,
		"count":     len(scenarios),
	})
}

// GetScenario retrieves a scenario by ID.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	scenario, err := h.lookupScenario(ctx, tenantID, scenarioID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "scenario not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, scenario)
}

// CreateScenario creates or replaces a scenario.
func (h *Handler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req domain.ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}

	scenario := req.ToScenario()
	scenario.ID = uuid.New().String()
	scenario.TenantID = tenantID

	if err := scenario.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveScenario(ctx, tenantID, scenario); err != nil {
		slog.Error("failed to save scenario", "id", scenario.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save scenario",
		})
		return
	}

	slog.Info("scenario created", "id", scenario.ID, "name", scenario.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, scenario)
}

// UpdateScenario updates an existing scenario.
func (h *Handler) UpdateScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	existing, err := h.repo.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "scenario not found",
		})
		return
	}

	var req domain.ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	scenario := req.ToScenario()
	scenario.ID = scenarioID
	scenario.TenantID = tenantID
	scenario.CreatedAt = existing.CreatedAt

	if err := scenario.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveScenario(ctx, tenantID, scenario); err != nil {
		slog.Error("failed to update scenario", "id", scenarioID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update scenario",
		})
		return
	}

	// Drop any stale cached copy
	if h.cache != nil {
		_ = h.cache.Delete(ctx, tenantID, "scenario:"+scenarioID)
	}

	slog.Info("scenario updated", "id", scenarioID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, scenario)
}

// DeleteScenario removes a scenario.
func (h *Handler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteScenario(ctx, tenantID, scenarioID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "scenario not found",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.Delete(ctx, tenantID, "scenario:"+scenarioID)
	}

	slog.Info("scenario deleted", "id", scenarioID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "scenario deleted",
	})
}

// RunScenario handles POST /scenarios/{id}/run: publishes an async
// simulation request for a stored scenario.
func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	scenarioID := chi.URLParam(r, "id")

	if scenarioID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "scenario id is required",
		})
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	// Verify the scenario exists before accepting the request.
	if _, err := h.lookupScenario(ctx, tenantID, scenarioID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "scenario not found",
		})
		return
	}

	var req SimulateRequest
	if r.Body != nil {
		// Overrides are optional; an empty body means scenario defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	simReq := worker.SimulationRequest{
		RequestID:  uuid.New().String(),
		TenantID:   tenantID,
		TraceID:    traceID,
		ScenarioID: scenarioID,
		Confidence: req.Confidence,
		RunCount:   req.RunCount,
		Seed:       req.Seed,
		Percentile: req.Percentile,
	}

	payload, _ := json.Marshal(simReq)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicSimulationRequested, payload); err != nil {
		slog.Error("failed to publish simulation request", "scenario_id", scenarioID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue simulation",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId":  simReq.RequestID,
		"scenarioId": scenarioID,
		"status":     "queued",
	})
}

// lookupScenario checks the cache before the repository.
func (h *Handler) lookupScenario(ctx context.Context, tenantID, scenarioID string) (*domain.Scenario, error) {
	if h.cache != nil {
		if s, err := h.cache.GetScenario(ctx, tenantID, scenarioID); err == nil && s != nil {
			return s, nil
		}
	}

	if h.repo == nil {
		return nil, repository.ErrNotFound
	}

	scenario, err := h.repo.GetScenario(ctx, tenantID, scenarioID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		_ = h.cache.SetScenario(ctx, tenantID, scenario, 5*time.Minute)
	}

	return scenario, nil
}

// applyDefaults fills zero-valued simulation settings from the server
// defaults.
func (h *Handler) applyDefaults(cfg *domain.SimulationConfig) {
	if cfg.Confidence == 0 {
		cfg.Confidence = h.defaults.Confidence
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = domain.DefaultConfidence
	}
	if cfg.RunCount == 0 {
		cfg.RunCount = h.defaults.RunCount
	}
	if cfg.RunCount == 0 {
		cfg.RunCount = domain.DefaultRunCount
	}
	if cfg.Percentile == 0 {
		cfg.Percentile = h.defaults.Percentile
	}
}

// ListPolicies returns all loaded tolerance policies from the engine.
// Policies are loaded from the database at startup and can be reloaded
// via POST /policies/reload.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.policyEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	loaded := h.policyEngine.GetLoadedPolicies()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": loaded,
		"count":    len(loaded),
		"source":   "database",
	})
}

// GetPolicy retrieves a tolerance policy by ID from the loaded engine
// policies.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	for _, p := range h.policyEngine.GetLoadedPolicies() {
		if p.ID == policyID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "policy not found",
	})
}

// CreatePolicyRequest is the request body for creating a tolerance policy.
type CreatePolicyRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	Bands       []domain.PolicyBand `json:"bands"`
	Enabled     bool                `json:"enabled"`
}

// CreatePolicy creates a tolerance policy and saves it to the database.
// After saving, call POST /policies/reload to hot-reload into the engine.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	policyCfg := &domain.TolerancePolicy{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression without loading it
	if err := h.policyEngine.ValidatePolicy(policyCfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository
	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, tenantID, policyCfg); err != nil {
			slog.Error("failed to save policy", "id", policyCfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	slog.Info("policy created", "id", policyCfg.ID, "name", policyCfg.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"policy":  policyCfg,
		"message": "Policy created. Call POST /policies/reload to apply changes.",
	})
}

// DeletePolicy soft-deletes a tolerance policy and auto-reloads the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeletePolicy(ctx, tenantID, policyID); err != nil {
			slog.Error("failed to delete policy", "id", policyID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}

		// Auto-reload policy engine after delete
		if h.policyEngine != nil {
			dbPolicies, err := h.repo.ListPolicies(ctx, tenantID)
			if err != nil {
				slog.Error("failed to reload policies after delete", "error", err)
			} else if err := h.policyEngine.ReloadPolicies(dbPolicies); err != nil {
				slog.Error("failed to reload policies into engine", "error", err)
			} else {
				slog.Info("policies auto-reloaded after delete", "count", len(dbPolicies))
			}
		}
	}

	slog.Info("policy deleted", "id", policyID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Policy deleted and engine reloaded.",
	})
}

// ReloadPolicies reloads all tolerance policies from the database into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbPolicies, err := h.repo.ListPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policyEngine.ReloadPolicies(dbPolicies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "count", len(dbPolicies))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   len(dbPolicies),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
