package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. Kestrel persists
// expert inputs (scenarios) and tolerance policies only; run outcomes stay
// in the cache. All methods require tenantID for strict tenant isolation.
type Repository interface {
	// Scenario operations
	SaveScenario(ctx context.Context, tenantID string, scenario *Scenario) error
	GetScenario(ctx context.Context, tenantID string, scenarioID string) (*Scenario, error)
	ListScenarios(ctx context.Context, tenantID string) ([]*Scenario, error)
	DeleteScenario(ctx context.Context, tenantID string, scenarioID string) error

	// Tolerance policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *TolerancePolicy) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*TolerancePolicy, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*TolerancePolicy, error)
	DeletePolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
