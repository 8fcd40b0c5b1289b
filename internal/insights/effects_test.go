package insights

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/memstore"
)

var effectAsOf = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

func seedEffectInsight(store *memstore.InsightStore, insightID string, status contracts.InsightStatus) {
	store.PutInsight(contracts.Insight{ID: insightID, Title: "Thesis " + insightID, Status: status})
	store.PutRule(includeRule("r-"+insightID, insightID, contracts.ScopeKind, "stock"))
}

func TestEffectsForSelectsDatedValue(t *testing.T) {
	store := memstore.NewInsightStore()
	seedEffectInsight(store, "i1", contracts.InsightStatusActive)
	store.PutChannel(contracts.InsightEffectChannel{
		ID: "ch-1", InsightID: "i1", MethodKey: "equity_factor_v1",
		MetricKey: "fair_value", Stage: contracts.LayerOutput,
		Operator: contracts.OpMul, Priority: 1, Enabled: true,
	})
	store.PutPoint(contracts.InsightEffectPoint{ChannelID: "ch-1", EffectDate: effectAsOf.AddDate(0, 0, -10), EffectValue: 1.05})
	store.PutPoint(contracts.InsightEffectPoint{ChannelID: "ch-1", EffectDate: effectAsOf.AddDate(0, 0, -2), EffectValue: 1.10})
	store.PutPoint(contracts.InsightEffectPoint{ChannelID: "ch-1", EffectDate: effectAsOf.AddDate(0, 0, 3), EffectValue: 1.50})

	src := NewEffectSource(store)
	effects, err := src.EffectsFor(context.Background(), "AAPL", techMeta, "equity_factor_v1", effectAsOf)
	require.NoError(t, err)

	require.Len(t, effects, 1)
	assert.Equal(t, "i1", effects[0].Insight.ID)
	assert.InDelta(t, 1.10, effects[0].Value, 1e-9, "latest point at or before asOf wins")
	assert.Equal(t, []string{"kind:stock"}, effects[0].ScopeLabels)
}

func TestEffectsForSkipsChannelsWithoutPoints(t *testing.T) {
	store := memstore.NewInsightStore()
	seedEffectInsight(store, "i1", contracts.InsightStatusActive)
	store.PutChannel(contracts.InsightEffectChannel{
		ID: "ch-1", InsightID: "i1", MethodKey: "equity_factor_v1",
		MetricKey: "fair_value", Stage: contracts.LayerOutput,
		Operator: contracts.OpMul, Priority: 1, Enabled: true,
	})
	// Only a future point exists
	store.PutPoint(contracts.InsightEffectPoint{ChannelID: "ch-1", EffectDate: effectAsOf.AddDate(0, 0, 1), EffectValue: 2})

	src := NewEffectSource(store)
	effects, err := src.EffectsFor(context.Background(), "AAPL", techMeta, "equity_factor_v1", effectAsOf)
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestEffectsForFiltersMethodAndEnabled(t *testing.T) {
	store := memstore.NewInsightStore()
	seedEffectInsight(store, "i1", contracts.InsightStatusActive)

	store.PutChannel(contracts.InsightEffectChannel{
		ID: "ch-other", InsightID: "i1", MethodKey: "another_method",
		MetricKey: "fair_value", Stage: contracts.LayerOutput,
		Operator: contracts.OpAdd, Priority: 1, Enabled: true,
	})
	store.PutChannel(contracts.InsightEffectChannel{
		ID: "ch-off", InsightID: "i1", MethodKey: "equity_factor_v1",
		MetricKey: "fair_value", Stage: contracts.LayerOutput,
		Operator: contracts.OpAdd, Priority: 1, Enabled: false,
	})
	for _, id := range []string{"ch-other", "ch-off"} {
		store.PutPoint(contracts.InsightEffectPoint{ChannelID: id, EffectDate: effectAsOf, EffectValue: 1})
	}

	src := NewEffectSource(store)
	effects, err := src.EffectsFor(context.Background(), "AAPL", techMeta, "equity_factor_v1", effectAsOf)
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestEffectsForExcludedSymbolGetsNothing(t *testing.T) {
	store := memstore.NewInsightStore()
	seedEffectInsight(store, "i1", contracts.InsightStatusActive)
	store.PutChannel(contracts.InsightEffectChannel{
		ID: "ch-1", InsightID: "i1", MethodKey: "equity_factor_v1",
		MetricKey: "fair_value", Stage: contracts.LayerOutput,
		Operator: contracts.OpMul, Priority: 1, Enabled: true,
	})
	store.PutPoint(contracts.InsightEffectPoint{ChannelID: "ch-1", EffectDate: effectAsOf, EffectValue: 1.1})
	store.PutExclusion(contracts.InsightTargetExclusion{InsightID: "i1", Symbol: "AAPL", CreatedAt: effectAsOf})

	src := NewEffectSource(store)
	effects, err := src.EffectsFor(context.Background(), "AAPL", techMeta, "equity_factor_v1", effectAsOf)
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestEffectsForIgnoresInactiveInsights(t *testing.T) {
	store := memstore.NewInsightStore()
	seedEffectInsight(store, "draft", contracts.InsightStatusDraft)
	seedEffectInsight(store, "archived", contracts.InsightStatusArchived)

	expired := contracts.Insight{
		ID: "expired", Title: "Expired", Status: contracts.InsightStatusActive,
	}
	to := effectAsOf.AddDate(0, 0, -1)
	expired.ValidTo = &to
	store.PutInsight(expired)
	store.PutRule(includeRule("r-expired", "expired", contracts.ScopeKind, "stock"))

	for _, id := range []string{"draft", "archived", "expired"} {
		store.PutChannel(contracts.InsightEffectChannel{
			ID: "ch-" + id, InsightID: id, MethodKey: "equity_factor_v1",
			MetricKey: "fair_value", Stage: contracts.LayerOutput,
			Operator: contracts.OpMul, Priority: 1, Enabled: true,
		})
		store.PutPoint(contracts.InsightEffectPoint{ChannelID: "ch-" + id, EffectDate: effectAsOf.AddDate(0, 0, -30), EffectValue: 1.1})
	}

	src := NewEffectSource(store)
	effects, err := src.EffectsFor(context.Background(), "AAPL", techMeta, "equity_factor_v1", effectAsOf)
	require.NoError(t, err)
	assert.Empty(t, effects)
}
