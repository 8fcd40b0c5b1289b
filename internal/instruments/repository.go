package instruments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagefolio/valora/internal/contracts"
)

// Repository reads instrument metadata maintained by the host
// application. Scope matching and the default cascade both key off it.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ contracts.MetadataProvider = (*Repository)(nil)

// GetInstrument returns one instrument's attribute set, or nil
func (r *Repository) GetInstrument(ctx context.Context, symbol string) (*contracts.InstrumentMeta, error) {
	query := `
		SELECT symbol, kind, asset_class, market, domain, industry_tag,
		       tags, watchlist_groups
		FROM instruments.instruments
		WHERE symbol = $1
	`

	var m contracts.InstrumentMeta
	err := r.db.QueryRow(ctx, query, symbol).Scan(
		&m.Symbol, &m.Kind, &m.AssetClass, &m.Market, &m.Domain,
		&m.IndustryTag, &m.Tags, &m.WatchlistGroups)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan instrument: %w", err)
	}
	return &m, nil
}

// ListSymbols returns every known symbol, sorted
func (r *Repository) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT symbol FROM instruments.instruments ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}
