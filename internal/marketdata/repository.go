package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagefolio/valora/internal/contracts"
)

// SnapshotRepository reads objective metric snapshots captured by the
// external refresh process. This service never writes them.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository instance
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

var _ contracts.SnapshotStore = (*SnapshotRepository)(nil)

// Get returns the snapshot on the exact date, or nil
func (r *SnapshotRepository) Get(ctx context.Context, symbol, methodKey, metricKey string, asOf time.Time) (*contracts.ValuationObjectiveMetricSnapshot, error) {
	query := `
		SELECT symbol, method_key, metric_key, as_of_date, value, quality, source
		FROM marketdata.objective_snapshots
		WHERE symbol = $1 AND method_key = $2 AND metric_key = $3 AND as_of_date = $4
	`

	row := r.db.QueryRow(ctx, query, symbol, methodKey, metricKey, asOf)
	return scanSnapshot(row)
}

// Latest returns the newest snapshot at or before the date, or nil
func (r *SnapshotRepository) Latest(ctx context.Context, symbol, methodKey, metricKey string, asOf time.Time) (*contracts.ValuationObjectiveMetricSnapshot, error) {
	query := `
		SELECT symbol, method_key, metric_key, as_of_date, value, quality, source
		FROM marketdata.objective_snapshots
		WHERE symbol = $1 AND method_key = $2 AND metric_key = $3 AND as_of_date <= $4
		ORDER BY as_of_date DESC
		LIMIT 1
	`

	row := r.db.QueryRow(ctx, query, symbol, methodKey, metricKey, asOf)
	return scanSnapshot(row)
}

func scanSnapshot(row pgx.Row) (*contracts.ValuationObjectiveMetricSnapshot, error) {
	var s contracts.ValuationObjectiveMetricSnapshot
	err := row.Scan(&s.Symbol, &s.MethodKey, &s.MetricKey, &s.AsOfDate, &s.Value, &s.Quality, &s.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &s, nil
}

// OverrideRepository persists per-symbol subjective overrides
type OverrideRepository struct {
	db *pgxpool.Pool
}

// NewOverrideRepository creates a new OverrideRepository instance
func NewOverrideRepository(db *pgxpool.Pool) *OverrideRepository {
	return &OverrideRepository{db: db}
}

var _ contracts.OverrideStore = (*OverrideRepository)(nil)

// Get returns one override, or nil
func (r *OverrideRepository) Get(ctx context.Context, symbol, methodKey, inputKey string) (*contracts.ValuationSubjectiveOverride, error) {
	query := `
		SELECT symbol, method_key, input_key, value, updated_at
		FROM marketdata.subjective_overrides
		WHERE symbol = $1 AND method_key = $2 AND input_key = $3
	`

	var o contracts.ValuationSubjectiveOverride
	err := r.db.QueryRow(ctx, query, symbol, methodKey, inputKey).
		Scan(&o.Symbol, &o.MethodKey, &o.InputKey, &o.Value, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan override: %w", err)
	}
	return &o, nil
}

// List returns every override a user entered for one (symbol, method)
func (r *OverrideRepository) List(ctx context.Context, symbol, methodKey string) ([]contracts.ValuationSubjectiveOverride, error) {
	query := `
		SELECT symbol, method_key, input_key, value, updated_at
		FROM marketdata.subjective_overrides
		WHERE symbol = $1 AND method_key = $2
		ORDER BY input_key
	`

	rows, err := r.db.Query(ctx, query, symbol, methodKey)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []contracts.ValuationSubjectiveOverride
	for rows.Next() {
		var o contracts.ValuationSubjectiveOverride
		if err := rows.Scan(&o.Symbol, &o.MethodKey, &o.InputKey, &o.Value, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}

	return overrides, rows.Err()
}

// Upsert writes an override, replacing a previous value for the key
func (r *OverrideRepository) Upsert(ctx context.Context, override contracts.ValuationSubjectiveOverride) error {
	query := `
		INSERT INTO marketdata.subjective_overrides (symbol, method_key, input_key, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, method_key, input_key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		override.Symbol, override.MethodKey, override.InputKey, override.Value, override.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// Delete removes an override; the input falls back to its default chain
func (r *OverrideRepository) Delete(ctx context.Context, symbol, methodKey, inputKey string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM marketdata.subjective_overrides WHERE symbol = $1 AND method_key = $2 AND input_key = $3`,
		symbol, methodKey, inputKey)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NewNotFound("override", symbol+"/"+inputKey)
	}
	return nil
}

// DefaultRepository reads tiered subjective defaults
type DefaultRepository struct {
	db *pgxpool.Pool
}

// NewDefaultRepository creates a new DefaultRepository instance
func NewDefaultRepository(db *pgxpool.Pool) *DefaultRepository {
	return &DefaultRepository{db: db}
}

var _ contracts.DefaultStore = (*DefaultRepository)(nil)

// List returns all defaults declared for one (method, input)
func (r *DefaultRepository) List(ctx context.Context, methodKey, inputKey string) ([]contracts.ValuationSubjectiveDefault, error) {
	query := `
		SELECT method_key, input_key, market, industry_tag, value
		FROM marketdata.subjective_defaults
		WHERE method_key = $1 AND input_key = $2
		ORDER BY industry_tag NULLS LAST, market NULLS LAST
	`

	rows, err := r.db.Query(ctx, query, methodKey, inputKey)
	if err != nil {
		return nil, fmt.Errorf("query defaults: %w", err)
	}
	defer rows.Close()

	var defaults []contracts.ValuationSubjectiveDefault
	for rows.Next() {
		var d contracts.ValuationSubjectiveDefault
		if err := rows.Scan(&d.MethodKey, &d.InputKey, &d.Market, &d.IndustryTag, &d.Value); err != nil {
			return nil, fmt.Errorf("scan default: %w", err)
		}
		defaults = append(defaults, d)
	}

	return defaults, rows.Err()
}

// AggregateRepository computes cross-sectional medians over the stored
// overrides, the widest tier of the default cascade
type AggregateRepository struct {
	db *pgxpool.Pool
}

// NewAggregateRepository creates a new AggregateRepository instance
func NewAggregateRepository(db *pgxpool.Pool) *AggregateRepository {
	return &AggregateRepository{db: db}
}

var _ contracts.AggregateProvider = (*AggregateRepository)(nil)

// IndustryMedian returns the median override inside one industry, or
// nil when no peer has a value
func (r *AggregateRepository) IndustryMedian(ctx context.Context, methodKey, inputKey, industryTag string) (*float64, error) {
	query := `
		SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY o.value)
		FROM marketdata.subjective_overrides o
		JOIN instruments.instruments i ON i.symbol = o.symbol
		WHERE o.method_key = $1 AND o.input_key = $2 AND i.industry_tag = $3
	`
	return r.median(ctx, query, methodKey, inputKey, industryTag)
}

// MarketMedian returns the median override inside one market
func (r *AggregateRepository) MarketMedian(ctx context.Context, methodKey, inputKey, market string) (*float64, error) {
	query := `
		SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY o.value)
		FROM marketdata.subjective_overrides o
		JOIN instruments.instruments i ON i.symbol = o.symbol
		WHERE o.method_key = $1 AND o.input_key = $2 AND i.market = $3
	`
	return r.median(ctx, query, methodKey, inputKey, market)
}

// GlobalMedian returns the median override across every instrument
func (r *AggregateRepository) GlobalMedian(ctx context.Context, methodKey, inputKey string) (*float64, error) {
	query := `
		SELECT percentile_cont(0.5) WITHIN GROUP (ORDER BY value)
		FROM marketdata.subjective_overrides
		WHERE method_key = $1 AND input_key = $2
	`
	return r.median(ctx, query, methodKey, inputKey)
}

func (r *AggregateRepository) median(ctx context.Context, query string, args ...interface{}) (*float64, error) {
	var value *float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query median: %w", err)
	}
	return value, nil
}
