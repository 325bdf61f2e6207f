// Package repository stores rule sets and model artifacts in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/securescan/internal/domain"
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

// New creates a new repository based on configuration. It returns a nil
// repository for driver "none".
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "none", "":
		return nil, nil
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
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRuleConfig inserts or updates a rule, keyed by kind and ID.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if rule.Kind != domain.RuleKindFloor && rule.Kind != domain.RuleKindFallback {
		return fmt.Errorf("%w: unsupported rule kind %q", ErrInvalidInput, rule.Kind)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rule_configs (
			id, kind, name, description, expression, value, position, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			value = excluded.value,
			position = excluded.position,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, string(rule.Kind), rule.Name, rule.Description,
		rule.Expression, rule.Value, rule.Position, enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListRuleConfigs returns the enabled rules of one kind in evaluation order.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, kind domain.RuleKind) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, kind, name, description, expression, value, position, enabled, created_at, updated_at
		FROM rule_configs
		WHERE kind = ? AND enabled = 1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var kindStr string
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &kindStr, &cfg.Name, &description,
			&cfg.Expression, &cfg.Value, &cfg.Position, &enabled,
			&cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}

		cfg.Kind = domain.RuleKind(kindStr)
		cfg.Description = description.String
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteRuleConfig soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, kind domain.RuleKind, ruleID string) error {
	query := `
		UPDATE rule_configs
		SET enabled = 0, updated_at = ?
		WHERE kind = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), string(kind), ruleID)
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

// SaveModelArtifact stores an artifact, replacing an existing one with the
// same name and version.
func (r *SQLRepository) SaveModelArtifact(ctx context.Context, artifact *domain.ModelArtifact) error {
	if artifact == nil || artifact.Name == "" || artifact.Version == "" {
		return fmt.Errorf("%w: artifact name and version are required", ErrInvalidInput)
	}
	if len(artifact.Body) == 0 {
		return fmt.Errorf("%w: artifact body is empty", ErrInvalidInput)
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO model_artifacts (name, version, format, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET
			format = excluded.format,
			body = excluded.body,
			created_at = excluded.created_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		artifact.Name, artifact.Version, artifact.Format, artifact.Body, artifact.CreatedAt,
	)
	return err
}

// GetModelArtifact returns the most recently stored artifact with the given name.
func (r *SQLRepository) GetModelArtifact(ctx context.Context, name string) (*domain.ModelArtifact, error) {
	query := `
		SELECT name, version, format, body, created_at
		FROM model_artifacts
		WHERE name = ?
		ORDER BY created_at DESC, version DESC
		LIMIT 1
	`

	var a domain.ModelArtifact
	err := r.db.QueryRowContext(ctx, r.rebind(query), name).Scan(
		&a.Name, &a.Version, &a.Format, &a.Body, &a.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
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

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
