package repository

import "fmt"

// Schema definitions for the SecureScan configuration store.
// Only scoring configuration is stored; transactions and verdicts are not.

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    value REAL NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, id)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_kind ON rule_configs(kind, enabled, position);
`

// schemaModelArtifacts stores serialized models. The body column type differs
// between SQLite (BLOB) and PostgreSQL (BYTEA).
const schemaModelArtifacts = `
CREATE TABLE IF NOT EXISTS model_artifacts (
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    format TEXT NOT NULL,
    body %s NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (name, version)
);

CREATE INDEX IF NOT EXISTS idx_model_artifacts_name ON model_artifacts(name, created_at);
`

// AllSchemas returns all schema statements for driver, in order.
func AllSchemas(driver string) []string {
	blob := "BLOB"
	if driver == "postgres" {
		blob = "BYTEA"
	}
	return []string{
		schemaRuleConfigs,
		fmt.Sprintf(schemaModelArtifacts, blob),
	}
}
