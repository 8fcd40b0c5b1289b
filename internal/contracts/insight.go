package contracts

import (
	"sort"
	"time"
)

// InsightStatus describes the lifecycle state of an insight
type InsightStatus string

const (
	InsightStatusDraft    InsightStatus = "draft"
	InsightStatusActive   InsightStatus = "active"
	InsightStatusArchived InsightStatus = "archived"
	InsightStatusDeleted  InsightStatus = "deleted"
)

// ScopeType identifies which instrument facet a scope rule tests
type ScopeType string

const (
	ScopeSymbol     ScopeType = "symbol"
	ScopeTag        ScopeType = "tag"
	ScopeKind       ScopeType = "kind"
	ScopeAssetClass ScopeType = "asset_class"
	ScopeMarket     ScopeType = "market"
	ScopeDomain     ScopeType = "domain"
	ScopeWatchlist  ScopeType = "watchlist"
)

// ScopeMode is include or exclude; exclude always wins
type ScopeMode string

const (
	ScopeInclude ScopeMode = "include"
	ScopeExclude ScopeMode = "exclude"
)

// EffectOperator is how a channel's value folds into the running metric
type EffectOperator string

const (
	OpSet EffectOperator = "set"
	OpAdd EffectOperator = "add"
	OpMul EffectOperator = "mul"
	OpMin EffectOperator = "min"
	OpMax EffectOperator = "max"
)

// Insight is a thesis-backed rule bundle that retargets which symbols it
// affects (scope rules) and how it nudges metrics (effect channels).
// ⭐ SSOT: only active insights participate in valuation
type Insight struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Thesis    string            `json:"thesis,omitempty"`
	Status    InsightStatus     `json:"status"`
	ValidFrom *time.Time        `json:"valid_from,omitempty"`
	ValidTo   *time.Time        `json:"valid_to,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty"`
}

// IsActiveOn reports whether the insight participates in valuation on
// the given date: status active, not soft-deleted, inside the validity
// window (open ends are unbounded).
func (i *Insight) IsActiveOn(date time.Time) bool {
	if i.Status != InsightStatusActive || i.DeletedAt != nil {
		return false
	}
	if i.ValidFrom != nil && date.Before(*i.ValidFrom) {
		return false
	}
	if i.ValidTo != nil && date.After(*i.ValidTo) {
		return false
	}
	return true
}

// InsightScopeRule targets or excludes a set of instruments for one insight
type InsightScopeRule struct {
	ID        string    `json:"id"`
	InsightID string    `json:"insight_id"`
	ScopeType ScopeType `json:"scope_type"`
	ScopeKey  string    `json:"scope_key"`
	Mode      ScopeMode `json:"mode"`
	Enabled   bool      `json:"enabled"`
}

// Matches tests the rule's scope key against an instrument's facets
func (r InsightScopeRule) Matches(meta *InstrumentMeta) bool {
	if meta == nil {
		return false
	}
	switch r.ScopeType {
	case ScopeSymbol:
		return meta.Symbol == r.ScopeKey
	case ScopeTag:
		return meta.HasTag(r.ScopeKey)
	case ScopeKind:
		return meta.Kind == r.ScopeKey
	case ScopeAssetClass:
		return meta.AssetClass == r.ScopeKey
	case ScopeMarket:
		return meta.Market == r.ScopeKey
	case ScopeDomain:
		return meta.Domain == r.ScopeKey
	case ScopeWatchlist:
		return meta.InWatchlist(r.ScopeKey)
	default:
		return false
	}
}

// Label renders the rule for audit display
func (r InsightScopeRule) Label() string {
	return string(r.ScopeType) + ":" + r.ScopeKey
}

// InsightEffectChannel targets one (method, metric) pair with an
// operator applied at a stage, ordered by priority
type InsightEffectChannel struct {
	ID        string         `json:"id"`
	InsightID string         `json:"insight_id"`
	MethodKey string         `json:"method_key"`
	MetricKey string         `json:"metric_key"`
	Stage     MetricLayer    `json:"stage"`
	Operator  EffectOperator `json:"operator"`
	Priority  int            `json:"priority"`
	Enabled   bool           `json:"enabled"`
}

// InsightEffectPoint is one (date, value) entry of a channel's series
type InsightEffectPoint struct {
	ChannelID   string    `json:"channel_id"`
	EffectDate  time.Time `json:"effect_date"`
	EffectValue float64   `json:"effect_value"`
}

// EffectiveValueAt selects the point whose date is the latest one at or
// before asOf. Returns nil when no point applies, which makes the
// channel inert for that evaluation.
func EffectiveValueAt(points []InsightEffectPoint, asOf time.Time) *float64 {
	var best *InsightEffectPoint
	for i := range points {
		p := &points[i]
		if p.EffectDate.After(asOf) {
			continue
		}
		if best == nil || p.EffectDate.After(best.EffectDate) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	v := best.EffectValue
	return &v
}

// InsightTargetExclusion forcibly removes a symbol from an insight's
// resolved target set, independent of scope rules (user "unlink").
type InsightTargetExclusion struct {
	InsightID string    `json:"insight_id"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}

// InsightMaterializedTarget is a cached scope resolution result. It is
// derived and rebuildable, never a source of truth.
type InsightMaterializedTarget struct {
	InsightID      string    `json:"insight_id"`
	Symbol         string    `json:"symbol"`
	MatchedRuleIDs []string  `json:"matched_rule_ids"`
	MaterializedAt time.Time `json:"materialized_at"`
}

// SortTargets orders targets by symbol for deterministic output
func SortTargets(targets []InsightMaterializedTarget) {
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Symbol < targets[j].Symbol
	})
}
