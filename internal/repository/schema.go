package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaScenarios = `
CREATE TABLE IF NOT EXISTS scenarios (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    freq_min REAL NOT NULL,
    freq_likely REAL NOT NULL,
    freq_max REAL NOT NULL,
    mag_min REAL NOT NULL,
    mag_likely REAL NOT NULL,
    mag_max REAL NOT NULL,
    confidence REAL NOT NULL DEFAULT 4.0,
    run_count INTEGER NOT NULL DEFAULT 10000,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    metadata TEXT,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_scenarios_tenant ON scenarios(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scenarios_enabled ON scenarios(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_scenarios_name ON scenarios(tenant_id, name);
`

const schemaTolerancePolicies = `
CREATE TABLE IF NOT EXISTS tolerance_policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_tolerance_policies_tenant ON tolerance_policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_tolerance_policies_enabled ON tolerance_policies(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScenarios,
		schemaTolerancePolicies,
	}
}
