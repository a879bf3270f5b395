// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveScenario stores a risk scenario with tenant isolation. Saving an
// existing ID overwrites the stored estimates and defaults.
func (r *SQLRepository) SaveScenario(ctx context.Context, tenantID string, scenario *domain.Scenario) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if scenario.ID == "" {
		return fmt.Errorf("%w: scenario ID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(scenario.Metadata)

	enabled := 0
	if scenario.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := scenario.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO scenarios (
			id, tenant_id, name, description,
			freq_min, freq_likely, freq_max,
			mag_min, mag_likely, mag_max,
			confidence, run_count, enabled,
			created_at, updated_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			freq_min = excluded.freq_min,
			freq_likely = excluded.freq_likely,
			freq_max = excluded.freq_max,
			mag_min = excluded.mag_min,
			mag_likely = excluded.mag_likely,
			mag_max = excluded.mag_max,
			confidence = excluded.confidence,
			run_count = excluded.run_count,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at,
			metadata = excluded.metadata
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		scenario.ID, tenantID, scenario.Name, scenario.Description,
		scenario.Frequency.Min, scenario.Frequency.Likely, scenario.Frequency.Max,
		scenario.Magnitude.Min, scenario.Magnitude.Likely, scenario.Magnitude.Max,
		scenario.Confidence, scenario.RunCount, enabled,
		createdAt, now, string(metadata),
	)
	return err
}

// GetScenario retrieves a scenario by ID with tenant isolation.
func (r *SQLRepository) GetScenario(ctx context.Context, tenantID string, scenarioID string) (*domain.Scenario, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description,
			   freq_min, freq_likely, freq_max,
			   mag_min, mag_likely, mag_max,
			   confidence, run_count, enabled,
			   created_at, updated_at, metadata
		FROM scenarios
		WHERE tenant_id = ? AND id = ?
	`

	var s domain.Scenario
	var enabled int
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scenarioID).Scan(
		&s.ID, &s.TenantID, &s.Name, &s.Description,
		&s.Frequency.Min, &s.Frequency.Likely, &s.Frequency.Max,
		&s.Magnitude.Min, &s.Magnitude.Likely, &s.Magnitude.Max,
		&s.Confidence, &s.RunCount, &enabled,
		&s.CreatedAt, &s.UpdatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Enabled = enabled == 1
	if metadata != "" && metadata != "null" {
		json.Unmarshal([]byte(metadata), &s.Metadata)
	}

	return &s, nil
}

// ListScenarios retrieves all scenarios for a tenant, enabled or not.
func (r *SQLRepository) ListScenarios(ctx context.Context, tenantID string) ([]*domain.Scenario, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description,
			   freq_min, freq_likely, freq_max,
			   mag_min, mag_likely, mag_max,
			   confidence, run_count, enabled,
			   created_at, updated_at, metadata
		FROM scenarios
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []*domain.Scenario
	for rows.Next() {
		var s domain.Scenario
		var enabled int
		var metadata string

		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.Name, &s.Description,
			&s.Frequency.Min, &s.Frequency.Likely, &s.Frequency.Max,
			&s.Magnitude.Min, &s.Magnitude.Likely, &s.Magnitude.Max,
			&s.Confidence, &s.RunCount, &enabled,
			&s.CreatedAt, &s.UpdatedAt, &metadata,
		); err != nil {
			return nil, err
		}

		s.Enabled = enabled == 1
		if metadata != "" && metadata != "null" {
			json.Unmarshal([]byte(metadata), &s.Metadata)
		}
		scenarios = append(scenarios, &s)
	}

	return scenarios, rows.Err()
}

// DeleteScenario removes a scenario with tenant isolation.
func (r *SQLRepository) DeleteScenario(ctx context.Context, tenantID string, scenarioID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM scenarios WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, scenarioID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SavePolicy stores a tolerance policy with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.TolerancePolicy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if policy.ID == "" {
		return fmt.Errorf("%w: policy ID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(policy.Bands)

	enabled := 0
	if policy.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO tolerance_policies (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.Name, policy.Description,
		policy.Version, policy.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetPolicy retrieves a tolerance policy with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.TolerancePolicy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM tolerance_policies
		WHERE tenant_id = ? AND id = ?
	`

	var p domain.TolerancePolicy
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description,
		&p.Version, &p.Expression, &bands, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &p.Bands)

	return &p, nil
}

// ListPolicies retrieves all active tolerance policies for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.TolerancePolicy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM tolerance_policies
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.TolerancePolicy
	for rows.Next() {
		var p domain.TolerancePolicy
		var bands string
		var enabled int

		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Name, &p.Description,
			&p.Version, &p.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		p.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &p.Bands)
		policies = append(policies, &p)
	}

	return policies, rows.Err()
}

// DeletePolicy soft-deletes a tolerance policy by setting enabled = 0.
func (r *SQLRepository) DeletePolicy(ctx context.Context, tenantID string, policyID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE tolerance_policies
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, policyID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
