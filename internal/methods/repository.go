package methods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagefolio/valora/internal/contracts"
)

// Repository persists methods and versions in PostgreSQL.
// Versions are append-only rows; active_version_id is the one mutable
// cell, updated in a single statement so readers never see a torn write.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ contracts.MethodStore = (*Repository)(nil)

// ListMethods returns every method row
func (r *Repository) ListMethods(ctx context.Context) ([]contracts.ValuationMethod, error) {
	query := `
		SELECT method_key, name, description, is_builtin, status,
		       asset_scope, active_version_id, created_at
		FROM valuation.methods
		ORDER BY created_at, method_key
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query methods: %w", err)
	}
	defer rows.Close()

	var methods []contracts.ValuationMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, *m)
	}

	return methods, rows.Err()
}

// GetMethod returns one method, or nil when the key is unknown
func (r *Repository) GetMethod(ctx context.Context, methodKey string) (*contracts.ValuationMethod, error) {
	query := `
		SELECT method_key, name, description, is_builtin, status,
		       asset_scope, active_version_id, created_at
		FROM valuation.methods
		WHERE method_key = $1
	`

	row := r.db.QueryRow(ctx, query, methodKey)
	m, err := scanMethod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListVersions returns all versions of a method, oldest first
func (r *Repository) ListVersions(ctx context.Context, methodKey string) ([]contracts.ValuationMethodVersion, error) {
	query := `
		SELECT id, method_key, version, effective_from, effective_to,
		       nodes, param_schema, metric_schema, input_schema, published_at
		FROM valuation.method_versions
		WHERE method_key = $1
		ORDER BY version
	`

	rows, err := r.db.Query(ctx, query, methodKey)
	if err != nil {
		return nil, fmt.Errorf("query method versions: %w", err)
	}
	defer rows.Close()

	var versions []contracts.ValuationMethodVersion
	for rows.Next() {
		var v contracts.ValuationMethodVersion
		var nodesJSON, paramJSON, metricJSON, inputJSON []byte

		if err := rows.Scan(
			&v.ID,
			&v.MethodKey,
			&v.Version,
			&v.EffectiveFrom,
			&v.EffectiveTo,
			&nodesJSON,
			&paramJSON,
			&metricJSON,
			&inputJSON,
			&v.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan method version: %w", err)
		}

		if err := json.Unmarshal(nodesJSON, &v.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
		if paramJSON != nil {
			if err := json.Unmarshal(paramJSON, &v.ParamSchema); err != nil {
				return nil, fmt.Errorf("unmarshal param schema: %w", err)
			}
		}
		if err := json.Unmarshal(metricJSON, &v.MetricSchema); err != nil {
			return nil, fmt.Errorf("unmarshal metric schema: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &v.InputSchema); err != nil {
			return nil, fmt.Errorf("unmarshal input schema: %w", err)
		}

		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// InsertMethod inserts a new method row
func (r *Repository) InsertMethod(ctx context.Context, method contracts.ValuationMethod) error {
	scopeJSON, err := json.Marshal(method.AssetScope)
	if err != nil {
		return fmt.Errorf("marshal asset scope: %w", err)
	}

	query := `
		INSERT INTO valuation.methods (
			method_key, name, description, is_builtin, status,
			asset_scope, active_version_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Exec(ctx, query,
		method.MethodKey,
		method.Name,
		method.Description,
		method.IsBuiltin,
		method.Status,
		scopeJSON,
		method.ActiveVersionID,
		method.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert method: %w", err)
	}

	return nil
}

// InsertVersion appends an immutable version row
func (r *Repository) InsertVersion(ctx context.Context, version contracts.ValuationMethodVersion) error {
	nodesJSON, err := json.Marshal(version.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	paramJSON, err := json.Marshal(version.ParamSchema)
	if err != nil {
		return fmt.Errorf("marshal param schema: %w", err)
	}
	metricJSON, err := json.Marshal(version.MetricSchema)
	if err != nil {
		return fmt.Errorf("marshal metric schema: %w", err)
	}
	inputJSON, err := json.Marshal(version.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input schema: %w", err)
	}

	query := `
		INSERT INTO valuation.method_versions (
			id, method_key, version, effective_from, effective_to,
			nodes, param_schema, metric_schema, input_schema, published_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.Exec(ctx, query,
		version.ID,
		version.MethodKey,
		version.Version,
		version.EffectiveFrom,
		version.EffectiveTo,
		nodesJSON,
		paramJSON,
		metricJSON,
		inputJSON,
		version.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert method version: %w", err)
	}

	return nil
}

// SetActiveVersion updates the active pointer in one statement
func (r *Repository) SetActiveVersion(ctx context.Context, methodKey, versionID string) error {
	query := `UPDATE valuation.methods SET active_version_id = $2 WHERE method_key = $1`

	tag, err := r.db.Exec(ctx, query, methodKey, versionID)
	if err != nil {
		return fmt.Errorf("set active version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NewNotFound("method", methodKey)
	}

	return nil
}

// SetStatus updates the lifecycle status
func (r *Repository) SetStatus(ctx context.Context, methodKey string, status contracts.MethodStatus) error {
	query := `UPDATE valuation.methods SET status = $2 WHERE method_key = $1`

	tag, err := r.db.Exec(ctx, query, methodKey, status)
	if err != nil {
		return fmt.Errorf("set method status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NewNotFound("method", methodKey)
	}

	return nil
}

func scanMethod(row pgx.Row) (*contracts.ValuationMethod, error) {
	var m contracts.ValuationMethod
	var scopeJSON []byte

	if err := row.Scan(
		&m.MethodKey,
		&m.Name,
		&m.Description,
		&m.IsBuiltin,
		&m.Status,
		&scopeJSON,
		&m.ActiveVersionID,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan method: %w", err)
	}

	if scopeJSON != nil {
		if err := json.Unmarshal(scopeJSON, &m.AssetScope); err != nil {
			return nil, fmt.Errorf("unmarshal asset scope: %w", err)
		}
	}

	return &m, nil
}
