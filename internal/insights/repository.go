package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantagefolio/valora/internal/contracts"
)

// Repository persists insights and their targeting state in PostgreSQL
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

var _ contracts.InsightStore = (*Repository)(nil)

// ListActiveInsights returns insights that participate in valuation on
// the given date: active, not soft-deleted, inside their validity
// window. Ordered by id so downstream stacking is reproducible.
func (r *Repository) ListActiveInsights(ctx context.Context, asOf time.Time) ([]contracts.Insight, error) {
	query := `
		SELECT id, title, thesis, status, valid_from, valid_to,
		       tags, meta, created_at, updated_at, deleted_at
		FROM insights.insights
		WHERE status = 'active'
		  AND deleted_at IS NULL
		  AND (valid_from IS NULL OR valid_from <= $1)
		  AND (valid_to IS NULL OR valid_to >= $1)
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("query active insights: %w", err)
	}
	defer rows.Close()

	var insights []contracts.Insight
	for rows.Next() {
		i, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		insights = append(insights, *i)
	}

	return insights, rows.Err()
}

// GetInsight returns one insight, or nil for unknown or soft-deleted ids
func (r *Repository) GetInsight(ctx context.Context, insightID string) (*contracts.Insight, error) {
	query := `
		SELECT id, title, thesis, status, valid_from, valid_to,
		       tags, meta, created_at, updated_at, deleted_at
		FROM insights.insights
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRow(ctx, query, insightID)
	i, err := scanInsight(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return i, nil
}

// InsertInsight writes a new insight row
func (r *Repository) InsertInsight(ctx context.Context, insight contracts.Insight) error {
	query := `
		INSERT INTO insights.insights
		       (id, title, thesis, status, valid_from, valid_to,
		        tags, meta, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		insight.ID, insight.Title, insight.Thesis, insight.Status,
		insight.ValidFrom, insight.ValidTo, insight.Tags, insight.Meta,
		insight.CreatedAt, insight.UpdatedAt, insight.DeletedAt)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

// UpdateInsight rewrites all mutable columns
func (r *Repository) UpdateInsight(ctx context.Context, insight contracts.Insight) error {
	query := `
		UPDATE insights.insights
		SET title = $2, thesis = $3, status = $4, valid_from = $5,
		    valid_to = $6, tags = $7, meta = $8, updated_at = $9,
		    deleted_at = $10
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		insight.ID, insight.Title, insight.Thesis, insight.Status,
		insight.ValidFrom, insight.ValidTo, insight.Tags, insight.Meta,
		insight.UpdatedAt, insight.DeletedAt)
	if err != nil {
		return fmt.Errorf("update insight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NewNotFound("insight", insight.ID)
	}
	return nil
}

// ListScopeRules returns an insight's targeting rules
func (r *Repository) ListScopeRules(ctx context.Context, insightID string) ([]contracts.InsightScopeRule, error) {
	query := `
		SELECT id, insight_id, scope_type, scope_key, mode, enabled
		FROM insights.scope_rules
		WHERE insight_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, insightID)
	if err != nil {
		return nil, fmt.Errorf("query scope rules: %w", err)
	}
	defer rows.Close()

	var rules []contracts.InsightScopeRule
	for rows.Next() {
		var rule contracts.InsightScopeRule
		if err := rows.Scan(&rule.ID, &rule.InsightID, &rule.ScopeType,
			&rule.ScopeKey, &rule.Mode, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("scan scope rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// UpsertScopeRule inserts or replaces one rule by id
func (r *Repository) UpsertScopeRule(ctx context.Context, rule contracts.InsightScopeRule) error {
	query := `
		INSERT INTO insights.scope_rules (id, insight_id, scope_type, scope_key, mode, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET scope_type = EXCLUDED.scope_type,
		    scope_key = EXCLUDED.scope_key,
		    mode = EXCLUDED.mode,
		    enabled = EXCLUDED.enabled
	`

	_, err := r.db.Exec(ctx, query,
		rule.ID, rule.InsightID, rule.ScopeType, rule.ScopeKey, rule.Mode, rule.Enabled)
	if err != nil {
		return fmt.Errorf("upsert scope rule: %w", err)
	}
	return nil
}

// DeleteScopeRule removes one rule
func (r *Repository) DeleteScopeRule(ctx context.Context, insightID, ruleID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM insights.scope_rules WHERE insight_id = $1 AND id = $2`,
		insightID, ruleID)
	if err != nil {
		return fmt.Errorf("delete scope rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NewNotFound("scope rule", ruleID)
	}
	return nil
}

// ListChannels returns an insight's effect channels
func (r *Repository) ListChannels(ctx context.Context, insightID string) ([]contracts.InsightEffectChannel, error) {
	query := `
		SELECT id, insight_id, method_key, metric_key, stage, operator, priority, enabled
		FROM insights.effect_channels
		WHERE insight_id = $1
		ORDER BY priority, id
	`

	rows, err := r.db.Query(ctx, query, insightID)
	if err != nil {
		return nil, fmt.Errorf("query effect channels: %w", err)
	}
	defer rows.Close()

	var channels []contracts.InsightEffectChannel
	for rows.Next() {
		var ch contracts.InsightEffectChannel
		if err := rows.Scan(&ch.ID, &ch.InsightID, &ch.MethodKey, &ch.MetricKey,
			&ch.Stage, &ch.Operator, &ch.Priority, &ch.Enabled); err != nil {
			return nil, fmt.Errorf("scan effect channel: %w", err)
		}
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

// UpsertChannel inserts or replaces one channel by id
func (r *Repository) UpsertChannel(ctx context.Context, channel contracts.InsightEffectChannel) error {
	query := `
		INSERT INTO insights.effect_channels
		       (id, insight_id, method_key, metric_key, stage, operator, priority, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET method_key = EXCLUDED.method_key,
		    metric_key = EXCLUDED.metric_key,
		    stage = EXCLUDED.stage,
		    operator = EXCLUDED.operator,
		    priority = EXCLUDED.priority,
		    enabled = EXCLUDED.enabled
	`

	_, err := r.db.Exec(ctx, query,
		channel.ID, channel.InsightID, channel.MethodKey, channel.MetricKey,
		channel.Stage, channel.Operator, channel.Priority, channel.Enabled)
	if err != nil {
		return fmt.Errorf("upsert effect channel: %w", err)
	}
	return nil
}

// DeleteChannel removes one channel together with its point series
func (r *Repository) DeleteChannel(ctx context.Context, insightID, channelID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM insights.effect_points WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("delete effect points: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM insights.effect_channels WHERE insight_id = $1 AND id = $2`,
		insightID, channelID)
	if err != nil {
		return fmt.Errorf("delete effect channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NewNotFound("effect channel", channelID)
	}

	return tx.Commit(ctx)
}

// ListPoints returns a channel's dated values, oldest first
func (r *Repository) ListPoints(ctx context.Context, channelID string) ([]contracts.InsightEffectPoint, error) {
	query := `
		SELECT channel_id, effect_date, effect_value
		FROM insights.effect_points
		WHERE channel_id = $1
		ORDER BY effect_date
	`

	rows, err := r.db.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("query effect points: %w", err)
	}
	defer rows.Close()

	var points []contracts.InsightEffectPoint
	for rows.Next() {
		var p contracts.InsightEffectPoint
		if err := rows.Scan(&p.ChannelID, &p.EffectDate, &p.EffectValue); err != nil {
			return nil, fmt.Errorf("scan effect point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// ReplacePoints swaps a channel's whole series atomically
func (r *Repository) ReplacePoints(ctx context.Context, channelID string, points []contracts.InsightEffectPoint) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM insights.effect_points WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("clear effect points: %w", err)
	}
	for _, p := range points {
		if _, err := tx.Exec(ctx,
			`INSERT INTO insights.effect_points (channel_id, effect_date, effect_value) VALUES ($1, $2, $3)`,
			channelID, p.EffectDate, p.EffectValue); err != nil {
			return fmt.Errorf("insert effect point: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListExclusions returns an insight's manual target exclusions
func (r *Repository) ListExclusions(ctx context.Context, insightID string) ([]contracts.InsightTargetExclusion, error) {
	query := `
		SELECT insight_id, symbol, created_at
		FROM insights.target_exclusions
		WHERE insight_id = $1
		ORDER BY symbol
	`

	rows, err := r.db.Query(ctx, query, insightID)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	var exclusions []contracts.InsightTargetExclusion
	for rows.Next() {
		var ex contracts.InsightTargetExclusion
		if err := rows.Scan(&ex.InsightID, &ex.Symbol, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		exclusions = append(exclusions, ex)
	}

	return exclusions, rows.Err()
}

// AddExclusion records a manual unlink; re-adding is a no-op
func (r *Repository) AddExclusion(ctx context.Context, exclusion contracts.InsightTargetExclusion) error {
	query := `
		INSERT INTO insights.target_exclusions (insight_id, symbol, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (insight_id, symbol) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query, exclusion.InsightID, exclusion.Symbol, exclusion.CreatedAt)
	if err != nil {
		return fmt.Errorf("add exclusion: %w", err)
	}
	return nil
}

// RemoveExclusion lifts a manual unlink
func (r *Repository) RemoveExclusion(ctx context.Context, insightID, symbol string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM insights.target_exclusions WHERE insight_id = $1 AND symbol = $2`,
		insightID, symbol)
	if err != nil {
		return fmt.Errorf("remove exclusion: %w", err)
	}
	return nil
}

func scanInsight(row pgx.Row) (*contracts.Insight, error) {
	var i contracts.Insight
	err := row.Scan(&i.ID, &i.Title, &i.Thesis, &i.Status, &i.ValidFrom,
		&i.ValidTo, &i.Tags, &i.Meta, &i.CreatedAt, &i.UpdatedAt, &i.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
