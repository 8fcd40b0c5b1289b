package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/pkg/logger"
)

// Materializer rebuilds the derived target sets. The output is a pure
// cache; dropping it and re-running Materialize is always safe.
type Materializer struct {
	metadata contracts.MetadataProvider
	reader   contracts.InsightReader
	resolver *ScopeResolver
	cache    contracts.TargetCache
	log      *logger.Logger
}

// NewMaterializer creates a new target materializer
func NewMaterializer(
	metadata contracts.MetadataProvider,
	reader contracts.InsightReader,
	cache contracts.TargetCache,
	log *logger.Logger,
) *Materializer {
	return &Materializer{
		metadata: metadata,
		reader:   reader,
		resolver: NewScopeResolver(reader),
		cache:    cache,
		log:      log,
	}
}

// Materialize resolves one insight against the full instrument universe
// and stores the result
func (m *Materializer) Materialize(ctx context.Context, insightID string) ([]contracts.InsightMaterializedTarget, error) {
	targets, err := m.resolveTargets(ctx, insightID)
	if err != nil {
		return nil, err
	}

	if err := m.cache.Set(ctx, insightID, targets); err != nil {
		return nil, fmt.Errorf("cache targets %s: %w", insightID, err)
	}

	m.log.WithFields(map[string]interface{}{
		"insight_id": insightID,
		"targets":    len(targets),
	}).Info("Insight targets materialized")

	return targets, nil
}

// PreviewTargets resolves without writing the cache, for dry runs in
// the editing UI
func (m *Materializer) PreviewTargets(ctx context.Context, insightID string) ([]contracts.InsightMaterializedTarget, error) {
	return m.resolveTargets(ctx, insightID)
}

// MaterializeAll rebuilds every active insight's targets. One failing
// insight does not stop the rest; the first error is reported after
// the sweep.
func (m *Materializer) MaterializeAll(ctx context.Context, asOf time.Time) error {
	insights, err := m.reader.ListActiveInsights(ctx, asOf)
	if err != nil {
		return fmt.Errorf("list active insights: %w", err)
	}

	var firstErr error
	for _, insight := range insights {
		if _, err := m.Materialize(ctx, insight.ID); err != nil {
			m.log.WithError(err).WithFields(map[string]interface{}{
				"insight_id": insight.ID,
			}).Error("Materialization failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Targets returns the cached target set, rebuilding on a miss
func (m *Materializer) Targets(ctx context.Context, insightID string) ([]contracts.InsightMaterializedTarget, error) {
	targets, ok, err := m.cache.Get(ctx, insightID)
	if err != nil {
		m.log.WithError(err).Warn("Target cache read failed, rebuilding")
	}
	if ok && err == nil {
		return targets, nil
	}
	return m.Materialize(ctx, insightID)
}

func (m *Materializer) resolveTargets(ctx context.Context, insightID string) ([]contracts.InsightMaterializedTarget, error) {
	insight, err := m.reader.GetInsight(ctx, insightID)
	if err != nil {
		return nil, err
	}
	if insight == nil {
		return nil, contracts.NewNotFound("insight", insightID)
	}

	symbols, err := m.metadata.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	now := time.Now().UTC()
	var targets []contracts.InsightMaterializedTarget
	for _, symbol := range symbols {
		meta, err := m.metadata.GetInstrument(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", symbol, err)
		}
		if meta == nil {
			continue
		}

		match, err := m.resolver.Resolve(ctx, insightID, meta)
		if err != nil {
			return nil, err
		}
		if !match.Targeted {
			continue
		}

		targets = append(targets, contracts.InsightMaterializedTarget{
			InsightID:      insightID,
			Symbol:         symbol,
			MatchedRuleIDs: match.MatchedRuleIDs,
			MaterializedAt: now,
		})
	}

	contracts.SortTargets(targets)
	return targets, nil
}
