package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict tenant isolation.
//
// Run outcomes live here with a TTL instead of in the repository: results
// are replayable from (scenario, seed), so durable storage buys nothing.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetOutcome retrieves a cached simulation outcome.
	GetOutcome(ctx context.Context, tenantID string, runID string) (*Outcome, error)

	// SetOutcome caches a simulation outcome for later retrieval.
	SetOutcome(ctx context.Context, tenantID string, outcome *Outcome, ttl time.Duration) error

	// GetScenario retrieves a cached scenario definition.
	GetScenario(ctx context.Context, tenantID string, scenarioID string) (*Scenario, error)

	// SetScenario caches a scenario definition to spare repository reads.
	SetScenario(ctx context.Context, tenantID string, scenario *Scenario, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// OutcomeTTL bounds how long run outcomes stay retrievable.
	OutcomeTTL time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
