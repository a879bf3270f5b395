package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/portfolio"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/simulation"
)

func seedPtr(v uint64) *uint64 { return &v }

// createTestServer wires a server against a temp SQLite repository, an
// in-memory cache, and a channel bus.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lruCache := cache.NewLRUCache(100)
	t.Cleanup(func() { lruCache.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine := simulation.NewEngine("test-v1")
	policyEngine, err := policy.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	t.Cleanup(func() { policyEngine.Close() })

	return NewServer(cfg, Dependencies{
		Repo:         repo,
		Cache:        lruCache,
		Bus:          eventBus,
		Engine:       engine,
		PolicyEngine: policyEngine,
		Processor:    assess.NewProcessor(),
		Portfolio:    portfolio.NewService(repo, lruCache, engine),
		Version:      "test-v1",
		OutcomeTTL:   time.Hour,
	})
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func getJSON(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestSimulateEndpoint(t *testing.T) {
	server := createTestServer(t)

	inlineRequest := SimulateRequest{
		Frequency: &domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
		Magnitude: &domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
		RunCount:  1000,
		Seed:      seedPtr(42),
	}

	t.Run("SuccessfulSimulation", func(t *testing.T) {
		rr := postJSON(t, server, "/simulate", inlineRequest)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp SimulateResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.RunID == "" {
			t.Error("expected runId in response")
		}
		if resp.Seed != 42 {
			t.Errorf("expected seed 42, got %d", resp.Seed)
		}
		if resp.RunCount != 1000 {
			t.Errorf("expected run count 1000, got %d", resp.RunCount)
		}
		if resp.Metrics.Mean <= 0 {
			t.Errorf("expected positive mean, got %v", resp.Metrics.Mean)
		}
		if resp.Metrics.ValueAtRisk < resp.Metrics.Mean {
			t.Errorf("VaR %v below mean %v", resp.Metrics.ValueAtRisk, resp.Metrics.Mean)
		}
		if resp.CrudeMetrics.Mean <= 0 {
			t.Errorf("expected positive crude mean, got %v", resp.CrudeMetrics.Mean)
		}
	})

	t.Run("Reproducible", func(t *testing.T) {
		rr1 := postJSON(t, server, "/simulate", inlineRequest)
		rr2 := postJSON(t, server, "/simulate", inlineRequest)

		var a, b SimulateResponse
		json.Unmarshal(rr1.Body.Bytes(), &a)
		json.Unmarshal(rr2.Body.Bytes(), &b)

		if a.Metrics != b.Metrics {
			t.Errorf("same seed produced different metrics: %+v vs %+v", a.Metrics, b.Metrics)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		body, _ := json.Marshal(inlineRequest)
		req := httptest.NewRequest(http.MethodPost, "/simulate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/simulate", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingEstimates", func(t *testing.T) {
		rr := postJSON(t, server, "/simulate", SimulateRequest{RunCount: 1000})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidEstimate", func(t *testing.T) {
		rr := postJSON(t, server, "/simulate", SimulateRequest{
			Frequency: &domain.RiskEstimate{Min: 9, Likely: 4, Max: 2},
			Magnitude: &domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
			RunCount:  1000,
		})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("UnknownScenario", func(t *testing.T) {
		rr := postJSON(t, server, "/simulate", SimulateRequest{ScenarioID: "no-such-scenario"})

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("BreachAssessment", func(t *testing.T) {
		one := 1.0
		err := server.Handler().policyEngine.LoadPolicy(&domain.TolerancePolicy{
			ID:         "tiny-appetite",
			Expression: "value_at_risk > 1.0 ? 1.0 : 0.0",
			Bands: []domain.PolicyBand{
				{LowerLimit: &one, UpperLimit: nil, Severity: domain.SeverityBreach, Reason: "VaR above appetite"},
			},
			Enabled: true,
		})
		if err != nil {
			t.Fatalf("failed to load policy: %v", err)
		}

		rr := postJSON(t, server, "/simulate", inlineRequest)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp SimulateResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Assessment == nil {
			t.Fatal("expected assessment when policies are loaded")
		}
		if resp.Assessment.Status != domain.StatusFail {
			t.Errorf("expected status ALERT, got %s", resp.Assessment.Status)
		}
		if resp.Assessment.Severity != domain.SeverityBreach {
			t.Errorf("expected .breach severity, got %s", resp.Assessment.Severity)
		}
	})
}

func TestRunRetrieval(t *testing.T) {
	server := createTestServer(t)

	rr := postJSON(t, server, "/simulate", SimulateRequest{
		Frequency: &domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
		Magnitude: &domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
		RunCount:  1000,
		Seed:      seedPtr(42),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("simulate failed: %d %s", rr.Code, rr.Body.String())
	}

	var simResp SimulateResponse
	json.Unmarshal(rr.Body.Bytes(), &simResp)

	t.Run("GetRun", func(t *testing.T) {
		rr := getJSON(t, server, "/runs/"+simResp.RunID)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var summary domain.OutcomeSummary
		json.Unmarshal(rr.Body.Bytes(), &summary)

		if summary.RunID != simResp.RunID {
			t.Errorf("expected runId %s, got %s", simResp.RunID, summary.RunID)
		}
		if summary.Metrics != simResp.Metrics {
			t.Errorf("cached metrics %+v differ from response %+v", summary.Metrics, simResp.Metrics)
		}
	})

	t.Run("GetExceedance", func(t *testing.T) {
		rr := getJSON(t, server, "/runs/"+simResp.RunID+"/exceedance")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			RunID      string                 `json:"runId"`
			Exceedance domain.ExceedanceCurve `json:"exceedance"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if len(resp.Exceedance) == 0 {
			t.Error("expected non-empty exceedance curve")
		}
	})

	t.Run("GetSample", func(t *testing.T) {
		rr := getJSON(t, server, "/runs/"+simResp.RunID+"/sample")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			RunID           string    `json:"runId"`
			FrequencySample []float64 `json:"frequencySample"`
			CrudeALE        []float64 `json:"crudeAle"`
			ALE             []float64 `json:"ale"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if len(resp.ALE) != 1000 {
			t.Errorf("expected 1000 ALE samples, got %d", len(resp.ALE))
		}
		if len(resp.FrequencySample) != 1000 {
			t.Errorf("expected 1000 frequency samples, got %d", len(resp.FrequencySample))
		}
	})

	t.Run("UnknownRun", func(t *testing.T) {
		rr := getJSON(t, server, "/runs/no-such-run")

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/runs/"+simResp.RunID, nil)
		req.Header.Set("X-Tenant-ID", "other-tenant")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404 for other tenant, got %d", rr.Code)
		}
	})
}

func TestScenarioEndpoints(t *testing.T) {
	server := createTestServer(t)

	scenarioReq := domain.ScenarioRequest{
		Name:        "Phishing Campaign",
		Description: "Credential phishing against finance staff",
		Frequency:   domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
		Magnitude:   domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000},
		RunCount:    1000,
	}

	var createdID string

	t.Run("Create", func(t *testing.T) {
		rr := postJSON(t, server, "/scenarios", scenarioReq)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var scenario domain.Scenario
		json.Unmarshal(rr.Body.Bytes(), &scenario)

		if scenario.ID == "" {
			t.Fatal("expected scenario ID to be assigned")
		}
		if scenario.TenantID != "tenant-001" {
			t.Errorf("expected tenant-001, got %s", scenario.TenantID)
		}
		if !scenario.Enabled {
			t.Error("expected scenario to default to enabled")
		}
		createdID = scenario.ID
	})

	t.Run("Get", func(t *testing.T) {
		rr := getJSON(t, server, "/scenarios/"+createdID)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var scenario domain.Scenario
		json.Unmarshal(rr.Body.Bytes(), &scenario)

		if scenario.Name != "Phishing Campaign" {
			t.Errorf("expected name 'Phishing Campaign', got '%s'", scenario.Name)
		}
		if scenario.Frequency != scenarioReq.Frequency {
			t.Errorf("frequency mismatch: %+v", scenario.Frequency)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := getJSON(t, server, "/scenarios")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Scenarios []*domain.Scenario `json:"scenarios"`
			Count     int                `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 1 {
			t.Errorf("expected 1 scenario, got %d", resp.Count)
		}
	})

	t.Run("Update", func(t *testing.T) {
		updated := scenarioReq
		updated.Name = "Phishing Campaign v2"
		updated.Magnitude = domain.RiskEstimate{Min: 2000, Likely: 5000, Max: 12000}

		data, _ := json.Marshal(updated)
		req := httptest.NewRequest(http.MethodPut, "/scenarios/"+createdID, bytes.NewBuffer(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = getJSON(t, server, "/scenarios/"+createdID)
		var scenario domain.Scenario
		json.Unmarshal(rr.Body.Bytes(), &scenario)

		if scenario.Name != "Phishing Campaign v2" {
			t.Errorf("expected updated name, got '%s'", scenario.Name)
		}
		if scenario.Magnitude.Max != 12000 {
			t.Errorf("expected updated magnitude, got %+v", scenario.Magnitude)
		}
	})

	t.Run("SimulateByScenarioID", func(t *testing.T) {
		rr := postJSON(t, server, "/simulate", SimulateRequest{
			ScenarioID: createdID,
			Seed:       seedPtr(42),
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp SimulateResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.ScenarioID != createdID {
			t.Errorf("expected scenarioId %s, got %s", createdID, resp.ScenarioID)
		}
		if resp.RunCount != 1000 {
			t.Errorf("expected scenario run count 1000, got %d", resp.RunCount)
		}
	})

	t.Run("RunAsync", func(t *testing.T) {
		rr := postJSON(t, server, "/scenarios/"+createdID+"/run", SimulateRequest{Seed: seedPtr(42)})

		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "queued" {
			t.Errorf("expected status 'queued', got '%s'", resp["status"])
		}
		if resp["requestId"] == "" {
			t.Error("expected requestId in response")
		}
	})

	t.Run("CreateMissingName", func(t *testing.T) {
		invalid := scenarioReq
		invalid.Name = ""
		rr := postJSON(t, server, "/scenarios", invalid)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CreateInvalidEstimates", func(t *testing.T) {
		invalid := scenarioReq
		invalid.Frequency = domain.RiskEstimate{Min: -1, Likely: 4, Max: 9}
		rr := postJSON(t, server, "/scenarios", invalid)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/scenarios/"+createdID, nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		rr2 := getJSON(t, server, "/scenarios/"+createdID)
		if rr2.Code != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", rr2.Code)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rr := getJSON(t, server, "/scenarios/no-such-scenario")

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestPolicyEndpoints(t *testing.T) {
	server := createTestServer(t)

	createReq := CreatePolicyRequest{
		ID:         "annual-appetite",
		Name:       "Annual Loss Appetite",
		Expression: "value_at_risk > 250000.0 ? 1.0 : 0.0",
		Bands: []domain.PolicyBand{
			{UpperLimit: float64Ptr(1), Severity: domain.SeverityOK, Reason: "within appetite"},
			{LowerLimit: float64Ptr(1), Severity: domain.SeverityBreach, Reason: "VaR exceeds appetite"},
		},
		Enabled: true,
	}

	t.Run("Create", func(t *testing.T) {
		rr := postJSON(t, server, "/policies", createReq)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		invalid := createReq
		invalid.ID = "broken"
		invalid.Expression = "value_at_risk >>> oops"
		rr := postJSON(t, server, "/policies", invalid)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CreateMissingFields", func(t *testing.T) {
		rr := postJSON(t, server, "/policies", CreatePolicyRequest{Name: "no-id"})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := postJSON(t, server, "/policies/reload", nil)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 1 {
			t.Errorf("expected 1 policy loaded, got %d", resp.Count)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := getJSON(t, server, "/policies")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 1 {
			t.Errorf("expected 1 policy, got %d", resp.Count)
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		rr := getJSON(t, server, "/policies/annual-appetite")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var p domain.TolerancePolicy
		json.Unmarshal(rr.Body.Bytes(), &p)

		if p.Name != "Annual Loss Appetite" {
			t.Errorf("expected policy name, got '%s'", p.Name)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rr := getJSON(t, server, "/policies/no-such-policy")

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/policies/annual-appetite", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		// Engine auto-reloads on delete; soft-deleted policy is excluded
		rr2 := getJSON(t, server, "/policies")
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr2.Body.Bytes(), &resp)

		if resp.Count != 0 {
			t.Errorf("expected 0 policies after delete, got %d", resp.Count)
		}
	})
}

func TestPortfolioEndpoint(t *testing.T) {
	server := createTestServer(t)

	createScenario := func(t *testing.T, name string, freq, mag domain.RiskEstimate) string {
		t.Helper()
		rr := postJSON(t, server, "/scenarios", domain.ScenarioRequest{
			Name:      name,
			Frequency: freq,
			Magnitude: mag,
			RunCount:  1000,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("failed to create scenario: %d %s", rr.Code, rr.Body.String())
		}
		var s domain.Scenario
		json.Unmarshal(rr.Body.Bytes(), &s)
		return s.ID
	}

	id1 := createScenario(t, "Phishing",
		domain.RiskEstimate{Min: 2, Likely: 4, Max: 9},
		domain.RiskEstimate{Min: 1000, Likely: 4000, Max: 9000})
	id2 := createScenario(t, "Ransomware",
		domain.RiskEstimate{Min: 0, Likely: 1, Max: 3},
		domain.RiskEstimate{Min: 50000, Likely: 200000, Max: 900000})

	t.Run("Aggregate", func(t *testing.T) {
		rr := postJSON(t, server, "/portfolio/simulate", PortfolioRequest{
			ScenarioIDs: []string{id1, id2},
			RunCount:    1000,
			Seed:        seedPtr(42),
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result portfolio.Result
		json.Unmarshal(rr.Body.Bytes(), &result)

		if result.Metrics.Mean <= 0 {
			t.Errorf("expected positive aggregate mean, got %v", result.Metrics.Mean)
		}
		if len(result.PerScenario) != 2 {
			t.Errorf("expected 2 per-scenario summaries, got %d", len(result.PerScenario))
		}
	})

	t.Run("EmptyScenarioList", func(t *testing.T) {
		rr := postJSON(t, server, "/portfolio/simulate", PortfolioRequest{
			ScenarioIDs: []string{},
			RunCount:    1000,
		})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownScenario", func(t *testing.T) {
		rr := postJSON(t, server, "/portfolio/simulate", PortfolioRequest{
			ScenarioIDs: []string{"no-such-scenario"},
			RunCount:    1000,
		})

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

func float64Ptr(v float64) *float64 { return &v }
