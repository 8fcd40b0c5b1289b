package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: collaborator interface 정의는 여기서만
//
// The valuation engine performs no I/O of its own. Everything it reads
// comes through these interfaces; the pgx repositories implement them
// and tests substitute in-memory fakes. Lookups where absence is a
// normal condition return (nil, nil), never a NotFoundError.

// MetadataProvider supplies instrument attribute sets for scope
// matching and method asset-scope filtering
type MetadataProvider interface {
	GetInstrument(ctx context.Context, symbol string) (*InstrumentMeta, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// SnapshotStore reads objective metric snapshots
type SnapshotStore interface {
	// Get returns the snapshot at the exact date, or nil
	Get(ctx context.Context, symbol, methodKey, metricKey string, asOf time.Time) (*ValuationObjectiveMetricSnapshot, error)
	// Latest returns the newest snapshot at or before the date, or nil
	Latest(ctx context.Context, symbol, methodKey, metricKey string, asOf time.Time) (*ValuationObjectiveMetricSnapshot, error)
}

// OverrideStore reads and writes per-symbol subjective overrides
type OverrideStore interface {
	Get(ctx context.Context, symbol, methodKey, inputKey string) (*ValuationSubjectiveOverride, error)
	List(ctx context.Context, symbol, methodKey string) ([]ValuationSubjectiveOverride, error)
	Upsert(ctx context.Context, override ValuationSubjectiveOverride) error
	Delete(ctx context.Context, symbol, methodKey, inputKey string) error
}

// DefaultStore reads tiered subjective defaults
type DefaultStore interface {
	List(ctx context.Context, methodKey, inputKey string) ([]ValuationSubjectiveDefault, error)
}

// AggregateProvider supplies median aggregates for the default cascade.
// A nil value means the aggregate cannot be computed.
type AggregateProvider interface {
	IndustryMedian(ctx context.Context, methodKey, inputKey, industryTag string) (*float64, error)
	MarketMedian(ctx context.Context, methodKey, inputKey, market string) (*float64, error)
	GlobalMedian(ctx context.Context, methodKey, inputKey string) (*float64, error)
}

// MethodStore persists valuation methods and their versions.
// Versions are append-only; the active pointer is the only mutable cell.
type MethodStore interface {
	ListMethods(ctx context.Context) ([]ValuationMethod, error)
	GetMethod(ctx context.Context, methodKey string) (*ValuationMethod, error)
	ListVersions(ctx context.Context, methodKey string) ([]ValuationMethodVersion, error)
	InsertMethod(ctx context.Context, method ValuationMethod) error
	InsertVersion(ctx context.Context, version ValuationMethodVersion) error
	SetActiveVersion(ctx context.Context, methodKey, versionID string) error
	SetStatus(ctx context.Context, methodKey string, status MethodStatus) error
}

// InsightReader is the read surface the scope resolver and effect
// stacker consume. Soft-deleted insights never come back from it.
type InsightReader interface {
	ListActiveInsights(ctx context.Context, asOf time.Time) ([]Insight, error)
	GetInsight(ctx context.Context, insightID string) (*Insight, error)
	ListScopeRules(ctx context.Context, insightID string) ([]InsightScopeRule, error)
	ListExclusions(ctx context.Context, insightID string) ([]InsightTargetExclusion, error)
	ListChannels(ctx context.Context, insightID string) ([]InsightEffectChannel, error)
	ListPoints(ctx context.Context, channelID string) ([]InsightEffectPoint, error)
}

// InsightWriter is the mutation surface behind the insight service.
// Deletes are soft at the service level; the writer only persists.
type InsightWriter interface {
	InsertInsight(ctx context.Context, insight Insight) error
	UpdateInsight(ctx context.Context, insight Insight) error
	UpsertScopeRule(ctx context.Context, rule InsightScopeRule) error
	DeleteScopeRule(ctx context.Context, insightID, ruleID string) error
	UpsertChannel(ctx context.Context, channel InsightEffectChannel) error
	DeleteChannel(ctx context.Context, insightID, channelID string) error
	ReplacePoints(ctx context.Context, channelID string, points []InsightEffectPoint) error
	AddExclusion(ctx context.Context, exclusion InsightTargetExclusion) error
	RemoveExclusion(ctx context.Context, insightID, symbol string) error
}

// InsightStore combines the read and write surfaces
type InsightStore interface {
	InsightReader
	InsightWriter
}

// TargetCache caches materialized targets per insight. Best-effort: a
// stale entry may include/exclude one write-cycle late, never corrupt
// a computation.
type TargetCache interface {
	Get(ctx context.Context, insightID string) ([]InsightMaterializedTarget, bool, error)
	Set(ctx context.Context, insightID string, targets []InsightMaterializedTarget) error
	Invalidate(ctx context.Context, insightID string) error
}
