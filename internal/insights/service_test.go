package insights

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/memstore"
	"github.com/vantagefolio/valora/pkg/config"
	"github.com/vantagefolio/valora/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json"})
}

func newServiceEnv() (*Service, *memstore.InsightStore, *memstore.TargetCache) {
	store := memstore.NewInsightStore()
	cache := memstore.NewTargetCache()
	return NewService(store, cache, testLogger()), store, cache
}

func TestServiceCreateDefaultsToDraft(t *testing.T) {
	svc, _, _ := newServiceEnv()
	ctx := context.Background()

	insight, err := svc.Create(ctx, CreateInsightInput{Title: "AI capex supercycle"})
	require.NoError(t, err)
	assert.NotEmpty(t, insight.ID)
	assert.Equal(t, contracts.InsightStatusDraft, insight.Status)

	// Drafts never participate in valuation
	assert.False(t, insight.IsActiveOn(time.Now()))

	_, err = svc.Create(ctx, CreateInsightInput{})
	var verr contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestServiceCreateRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := newServiceEnv()
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateInsightInput{
		Title: "Backwards", ValidFrom: &from, ValidTo: &to,
	})
	var verr contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "valid_from", verr.Field)
}

func TestServiceUpdateAndActivate(t *testing.T) {
	svc, store, _ := newServiceEnv()
	ctx := context.Background()

	insight, err := svc.Create(ctx, CreateInsightInput{Title: "Rate cuts"})
	require.NoError(t, err)

	active := contracts.InsightStatusActive
	updated, err := svc.Update(ctx, insight.ID, UpdateInsightInput{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, contracts.InsightStatusActive, updated.Status)

	listed, err := store.ListActiveInsights(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, insight.ID, listed[0].ID)

	// Unknown id
	_, err = svc.Update(ctx, "missing", UpdateInsightInput{Status: &active})
	var nf contracts.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestServiceSoftDelete(t *testing.T) {
	svc, store, _ := newServiceEnv()
	ctx := context.Background()

	active := contracts.InsightStatusActive
	insight, err := svc.Create(ctx, CreateInsightInput{Title: "Gone", Status: active})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, insight.ID))

	got, err := store.GetInsight(ctx, insight.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	listed, err := store.ListActiveInsights(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Deleting twice reports not found
	var nf contracts.NotFoundError
	assert.ErrorAs(t, svc.Delete(ctx, insight.ID), &nf)
}

func TestServiceRuleWritesInvalidateCache(t *testing.T) {
	svc, _, cache := newServiceEnv()
	ctx := context.Background()

	insight, err := svc.Create(ctx, CreateInsightInput{Title: "Cache check"})
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, insight.ID, []contracts.InsightMaterializedTarget{
		{InsightID: insight.ID, Symbol: "AAPL"},
	}))

	_, err = svc.UpsertScopeRule(ctx, insight.ID, contracts.InsightScopeRule{
		ScopeType: contracts.ScopeKind, ScopeKey: "stock",
		Mode: contracts.ScopeInclude, Enabled: true,
	})
	require.NoError(t, err)

	_, found, err := cache.Get(ctx, insight.ID)
	require.NoError(t, err)
	assert.False(t, found, "rule write must invalidate cached targets")
}

func TestServiceExclusionInvalidatesCache(t *testing.T) {
	svc, store, cache := newServiceEnv()
	ctx := context.Background()

	insight, err := svc.Create(ctx, CreateInsightInput{Title: "Unlink"})
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, insight.ID, nil))

	require.NoError(t, svc.ExcludeTarget(ctx, insight.ID, "AAPL"))
	_, found, err := cache.Get(ctx, insight.ID)
	require.NoError(t, err)
	assert.False(t, found)

	exclusions, err := store.ListExclusions(ctx, insight.ID)
	require.NoError(t, err)
	require.Len(t, exclusions, 1)

	require.NoError(t, svc.RestoreTarget(ctx, insight.ID, "AAPL"))
	exclusions, err = store.ListExclusions(ctx, insight.ID)
	require.NoError(t, err)
	assert.Empty(t, exclusions)
}

func TestServiceScopeRuleValidation(t *testing.T) {
	svc, _, _ := newServiceEnv()
	ctx := context.Background()
	insight, err := svc.Create(ctx, CreateInsightInput{Title: "Rules"})
	require.NoError(t, err)

	cases := []struct {
		name string
		rule contracts.InsightScopeRule
	}{
		{"unknown scope type", contracts.InsightScopeRule{ScopeType: "galaxy", ScopeKey: "x", Mode: contracts.ScopeInclude}},
		{"empty scope key", contracts.InsightScopeRule{ScopeType: contracts.ScopeKind, Mode: contracts.ScopeInclude}},
		{"bad mode", contracts.InsightScopeRule{ScopeType: contracts.ScopeKind, ScopeKey: "stock", Mode: "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertScopeRule(ctx, insight.ID, tc.rule)
			var verr contracts.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestServiceChannelValidation(t *testing.T) {
	svc, _, _ := newServiceEnv()
	ctx := context.Background()
	insight, err := svc.Create(ctx, CreateInsightInput{Title: "Channels"})
	require.NoError(t, err)

	ch, err := svc.UpsertChannel(ctx, insight.ID, contracts.InsightEffectChannel{
		MethodKey: "equity_factor_v1", MetricKey: "fair_value",
		Stage: contracts.LayerOutput, Operator: contracts.OpMul,
		Priority: 1, Enabled: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)

	_, err = svc.UpsertChannel(ctx, insight.ID, contracts.InsightEffectChannel{
		MethodKey: "equity_factor_v1", MetricKey: "fair_value",
		Stage: "galaxy", Operator: contracts.OpMul,
	})
	var verr contracts.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpsertChannel(ctx, insight.ID, contracts.InsightEffectChannel{
		MethodKey: "equity_factor_v1", MetricKey: "fair_value",
		Stage: contracts.LayerOutput, Operator: "divide",
	})
	assert.ErrorAs(t, err, &verr)
}

func TestServiceReplacePointsRejectsDuplicateDates(t *testing.T) {
	svc, store, _ := newServiceEnv()
	ctx := context.Background()

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	err := svc.ReplacePoints(ctx, "ch-1", []contracts.InsightEffectPoint{
		{EffectDate: day, EffectValue: 1.1},
		{EffectDate: day, EffectValue: 1.2},
	})
	var verr contracts.ValidationError
	require.ErrorAs(t, err, &verr)

	err = svc.ReplacePoints(ctx, "ch-1", []contracts.InsightEffectPoint{
		{EffectDate: day, EffectValue: 1.1},
		{EffectDate: day.AddDate(0, 0, 7), EffectValue: 1.2},
	})
	require.NoError(t, err)

	points, err := store.ListPoints(ctx, "ch-1")
	require.NoError(t, err)
	assert.Len(t, points, 2)
	assert.Equal(t, "ch-1", points[0].ChannelID)
}
