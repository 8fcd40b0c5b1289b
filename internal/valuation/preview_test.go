package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagefolio/valora/internal/contracts"
)

func TestComputeBaseFairValue(t *testing.T) {
	env := newTestEnv(t)
	env.seedBaseline(t)

	preview, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)

	require.False(t, preview.NotApplicable)
	assert.Equal(t, "equity_factor_v1", preview.MethodKey)
	assert.Equal(t, "fair_value", preview.OutputKey)

	// 100 * (1 + 0.10*0.5) * (1 - 0.30*0.2) = 98.7
	require.NotNil(t, preview.BaseValue)
	assert.InDelta(t, 98.7, *preview.BaseValue, 1e-9)

	// No effects: adjusted equals base
	require.NotNil(t, preview.AdjustedValue)
	assert.InDelta(t, 98.7, *preview.AdjustedValue, 1e-9)
	assert.Empty(t, preview.AppliedEffects)

	// Risk layer derives from the output
	require.NotNil(t, preview.BaseMetrics["expected_return"])
	assert.InDelta(t, -0.013, *preview.BaseMetrics["expected_return"], 1e-9)
	require.NotNil(t, preview.BaseMetrics["valuation_spread"])
	assert.InDelta(t, 0.013, *preview.BaseMetrics["valuation_spread"], 1e-9)

	assert.Equal(t, contracts.ConfidenceHigh, preview.Confidence)
	assert.Empty(t, preview.DegradationReasons)
}

func TestComputeIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	env.seedBaseline(t)
	env.effects.effects = []ResolvedEffect{
		{
			Insight: contracts.Insight{ID: "ins-1", Title: "Momentum regime"},
			Channel: contracts.InsightEffectChannel{
				ID: "ch-1", InsightID: "ins-1", MethodKey: "equity_factor_v1",
				MetricKey: "momentum", Stage: contracts.LayerTop,
				Operator: contracts.OpMul, Priority: 1, Enabled: true,
			},
			Value: 1.2,
		},
		{
			Insight: contracts.Insight{ID: "ins-2", Title: "Haircut"},
			Channel: contracts.InsightEffectChannel{
				ID: "ch-2", InsightID: "ins-2", MethodKey: "equity_factor_v1",
				MetricKey: "fair_value", Stage: contracts.LayerOutput,
				Operator: contracts.OpAdd, Priority: 5, Enabled: true,
			},
			Value: -1.5,
		},
	}

	first, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)
	second, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)

	require.NotNil(t, first.AdjustedValue)
	require.NotNil(t, second.AdjustedValue)
	assert.Equal(t, *first.AdjustedValue, *second.AdjustedValue)
	require.Equal(t, len(first.AppliedEffects), len(second.AppliedEffects))
	for i := range first.AppliedEffects {
		assert.Equal(t, first.AppliedEffects[i].ChannelID, second.AppliedEffects[i].ChannelID)
		assert.Equal(t, first.AppliedEffects[i].AfterValue, second.AppliedEffects[i].AfterValue)
	}
	assert.Equal(t, first.Inputs, second.Inputs)
}

func TestComputeAppliesOutputEffect(t *testing.T) {
	env := newTestEnv(t)
	env.seedBaseline(t)
	env.effects.effects = []ResolvedEffect{
		{
			Insight: contracts.Insight{ID: "ins-1", Title: "Sentiment premium"},
			Channel: contracts.InsightEffectChannel{
				ID: "ch-1", InsightID: "ins-1", MethodKey: "equity_factor_v1",
				MetricKey: "fair_value", Stage: contracts.LayerFirstOrder,
				Operator: contracts.OpAdd, Priority: 1, Enabled: true,
			},
			Value: 0.05,
		},
	}

	preview, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)

	// Base untouched, adjusted carries the addition
	require.NotNil(t, preview.BaseValue)
	assert.InDelta(t, 98.7, *preview.BaseValue, 1e-9)
	require.NotNil(t, preview.AdjustedValue)
	assert.InDelta(t, 98.75, *preview.AdjustedValue, 1e-9)

	require.Len(t, preview.AppliedEffects, 1)
	eff := preview.AppliedEffects[0]
	assert.Equal(t, "ins-1", eff.InsightID)
	assert.InDelta(t, 98.7, *eff.BeforeValue, 1e-9)
	assert.InDelta(t, 98.75, *eff.AfterValue, 1e-9)

	// Risk metrics follow the adjusted output
	require.NotNil(t, preview.AdjustedMetrics["expected_return"])
	assert.InDelta(t, -0.0125, *preview.AdjustedMetrics["expected_return"], 1e-9)

	adj := preview.Adjustment()
	require.NotNil(t, adj)
	assert.InDelta(t, 0.05, *adj, 1e-9)
}

func TestComputeUnknownInstrument(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ComputeBySymbol(context.Background(), "NOPE", "equity_factor_v1", asOf)
	var nfErr contracts.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "instrument", nfErr.Resource)
}

func TestComputeNotApplicable(t *testing.T) {
	env := newTestEnv(t)

	// The bond matches no method scope
	preview, err := env.engine.ComputeBySymbol(context.Background(), "T10Y", "", asOf)
	require.NoError(t, err)
	assert.True(t, preview.NotApplicable)
	assert.Equal(t, contracts.ConfidenceNotApplicable, preview.Confidence)
	assert.Nil(t, preview.BaseValue)
	assert.NotEmpty(t, preview.Reason)
}

func TestComputeResolvesMethodFromScope(t *testing.T) {
	env := newTestEnv(t)
	env.seedBaseline(t)

	preview, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "", asOf)
	require.NoError(t, err)
	assert.False(t, preview.NotApplicable)
	assert.Equal(t, "equity_factor_v1", preview.MethodKey)
}

func TestComputeMissingInputDegradesGracefully(t *testing.T) {
	env := newTestEnv(t)
	// Price snapshot only: momentum and volatility stay unresolved
	env.snapshots.Put(contracts.ValuationObjectiveMetricSnapshot{
		Symbol: "AAPL", MethodKey: "equity_factor_v1", MetricKey: "price",
		AsOfDate: asOf, Value: 100, Quality: contracts.QualityFresh, Source: "market_close",
	})
	env.effects.effects = []ResolvedEffect{
		{
			Insight: contracts.Insight{ID: "ins-1", Title: "Inert on nil"},
			Channel: contracts.InsightEffectChannel{
				ID: "ch-1", InsightID: "ins-1", MethodKey: "equity_factor_v1",
				MetricKey: "fair_value", Stage: contracts.LayerOutput,
				Operator: contracts.OpMul, Priority: 1, Enabled: true,
			},
			Value: 1.1,
		},
	}

	preview, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)

	assert.Nil(t, preview.BaseValue)
	assert.Nil(t, preview.AdjustedValue)
	// Arithmetic operators never fabricate a value from nil
	assert.Empty(t, preview.AppliedEffects)
	// No headline value could be produced, but the preview is still a
	// full result with its input breakdown intact
	assert.False(t, preview.NotApplicable)
	assert.Equal(t, contracts.ConfidenceNotApplicable, preview.Confidence)
	assert.Len(t, preview.DegradationReasons, 2)
	assert.Nil(t, preview.Adjustment())
}

func TestComputeStaleSnapshotLowersConfidence(t *testing.T) {
	// Price only exists three days before asOf
	env2 := newTestEnv(t)
	env2.snapshots.Put(contracts.ValuationObjectiveMetricSnapshot{
		Symbol: "AAPL", MethodKey: "equity_factor_v1", MetricKey: "price",
		AsOfDate: asOf.AddDate(0, 0, -3), Value: 100, Quality: contracts.QualityFresh, Source: "market_close",
	})
	ctx := context.Background()
	for key, val := range map[string]float64{"momentum": 0.10, "volatility": 0.30} {
		require.NoError(t, env2.overrides.Upsert(ctx, contracts.ValuationSubjectiveOverride{
			Symbol: "AAPL", MethodKey: "equity_factor_v1", InputKey: key, Value: val,
		}))
	}

	preview, err := env2.engine.ComputeBySymbol(ctx, "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)

	require.NotNil(t, preview.BaseValue)
	assert.InDelta(t, 98.7, *preview.BaseValue, 1e-9)
	// price is the sole objective input, so one stale snapshot already
	// tips the degraded share past half
	assert.Equal(t, contracts.ConfidenceLow, preview.Confidence)
	require.Len(t, preview.DegradationReasons, 1)
	assert.Contains(t, preview.DegradationReasons[0], "price")

	var priceItem *contracts.ValuationInputBreakdownItem
	for i := range preview.Inputs {
		if preview.Inputs[i].Key == "price" {
			priceItem = &preview.Inputs[i]
		}
	}
	require.NotNil(t, priceItem)
	assert.Equal(t, contracts.QualityStale, priceItem.Quality)
}

func TestComputeAsOfSelectsEffectPointUpstream(t *testing.T) {
	// EffectiveValueAt is exercised in contracts; here we only check
	// the engine faithfully reports the value the source resolved.
	env := newTestEnv(t)
	env.seedBaseline(t)
	env.effects.effects = []ResolvedEffect{
		{
			Insight: contracts.Insight{ID: "ins-1", Title: "Dated thesis"},
			Channel: contracts.InsightEffectChannel{
				ID: "ch-1", InsightID: "ins-1", MethodKey: "equity_factor_v1",
				MetricKey: "fair_value", Stage: contracts.LayerOutput,
				Operator: contracts.OpSet, Priority: 1, Enabled: true,
			},
			Value:       120,
			ScopeLabels: []string{"kind:stock"},
		},
	}

	preview, err := env.engine.ComputeBySymbol(context.Background(), "AAPL", "equity_factor_v1", asOf)
	require.NoError(t, err)
	require.NotNil(t, preview.AdjustedValue)
	assert.InDelta(t, 120, *preview.AdjustedValue, 1e-9)
	require.Len(t, preview.AppliedEffects, 1)
	assert.Equal(t, []string{"kind:stock"}, preview.AppliedEffects[0].ScopeLabels)
}

func TestNoActiveVersionNotApplicable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.methodSt.InsertMethod(ctx, contracts.ValuationMethod{
		MethodKey: "empty_method", Name: "Empty", Status: contracts.MethodStatusActive,
		CreatedAt: time.Now().UTC(),
	}))

	preview, err := env.engine.ComputeBySymbol(ctx, "AAPL", "empty_method", asOf)
	require.NoError(t, err)
	assert.True(t, preview.NotApplicable)
	assert.Contains(t, preview.Reason, "no published versions")
}
