package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/portfolio"
	"github.com/opensource-finance/kestrel/internal/simulation"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Dependencies holds the components the server serves.
type Dependencies struct {
	Repo         domain.Repository
	Cache        domain.Cache
	Bus          domain.EventBus
	Engine       *simulation.Engine
	PolicyEngine *policy.Engine
	Processor    *assess.Processor
	Portfolio    *portfolio.Service
	Version      string
	OutcomeTTL   time.Duration
	Defaults     domain.SimulationConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps.Repo, deps.Cache, deps.Bus, deps.Engine, deps.PolicyEngine, deps.Processor, deps.Portfolio, deps.Version, deps.OutcomeTTL, deps.Defaults)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Synchronous simulation
		r.Post("/simulate", handler.Simulate)

		// Run retrieval from the ephemeral cache
		r.Get("/runs/{id}", handler.GetRun)
		r.Get("/runs/{id}/exceedance", handler.GetRunExceedance)
		r.Get("/runs/{id}/sample", handler.GetRunSample)

		// Scenario management
		r.Get("/scenarios", handler.ListScenarios)
		r.Get("/scenarios/{id}", handler.GetScenario)
		r.Post("/scenarios", handler.CreateScenario)
		r.Put("/scenarios/{id}", handler.UpdateScenario)
		r.Delete("/scenarios/{id}", handler.DeleteScenario)
		r.Post("/scenarios/{id}/run", handler.RunScenario)

		// Tolerance policy management
		r.Get("/policies", handler.ListPolicies)
		r.Get("/policies/{id}", handler.GetPolicy)
		r.Post("/policies", handler.CreatePolicy)
		r.Delete("/policies/{id}", handler.DeletePolicy)
		r.Post("/policies/reload", handler.ReloadPolicies)

		// Portfolio aggregation
		r.Post("/portfolio/simulate", handler.SimulatePortfolio)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
