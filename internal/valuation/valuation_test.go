package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/formula"
	"github.com/vantagefolio/valora/internal/memstore"
	"github.com/vantagefolio/valora/internal/methods"
	"github.com/vantagefolio/valora/pkg/config"
	"github.com/vantagefolio/valora/pkg/logger"
)

// Shared fixtures for the valuation package tests. The factor model
// mirrors the shipped equity_factor_v1 seed: price tilted by momentum,
// discounted by volatility, with return and spread risk metrics.

func testLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json"})
}

func fptr(v float64) *float64 { return &v }

func factorVersion() *contracts.ValuationMethodVersion {
	return &contracts.ValuationMethodVersion{
		ID:        "efv1-v1",
		MethodKey: "equity_factor_v1",
		Version:   1,
		Nodes: []contracts.ValuationMetricNode{
			{Key: "price", Layer: contracts.LayerTop, Unit: contracts.UnitCurrency, FormulaID: "input"},
			{Key: "momentum", Layer: contracts.LayerTop, FormulaID: "input", Editable: true},
			{Key: "volatility", Layer: contracts.LayerTop, FormulaID: "input", Editable: true},
			{Key: "momentum_value", Layer: contracts.LayerFirstOrder, Unit: contracts.UnitCurrency, DependsOn: []string{"price", "momentum"}, FormulaID: "momentum_tilt"},
			{Key: "fair_value", Layer: contracts.LayerOutput, Unit: contracts.UnitCurrency, DependsOn: []string{"momentum_value", "volatility"}, FormulaID: "volatility_discount"},
			{Key: "expected_return", Layer: contracts.LayerRisk, DependsOn: []string{"fair_value", "price"}, FormulaID: "return_gap"},
			{Key: "valuation_spread", Layer: contracts.LayerRisk, DependsOn: []string{"fair_value", "price"}, FormulaID: "risk_spread"},
		},
		ParamSchema: map[string]float64{
			"momentumWeight":    0.5,
			"volatilityPenalty": 0.2,
		},
		MetricSchema: contracts.MetricSchema{
			RequiredInputs: []string{"price", "momentum", "volatility"},
			Outputs:        []string{"fair_value"},
		},
		InputSchema: []contracts.ValuationMethodInputField{
			{Key: "price", Kind: contracts.InputObjective, Unit: contracts.UnitCurrency, ObjectiveSource: strptr("market_close"), DefaultPolicy: contracts.DefaultNone, DisplayOrder: 1},
			{Key: "momentum", Kind: contracts.InputSubjective, Editable: true, DefaultPolicy: contracts.DefaultIndustryMedian, DisplayOrder: 2},
			{Key: "volatility", Kind: contracts.InputSubjective, Editable: true, DefaultPolicy: contracts.DefaultIndustryMedian, DisplayOrder: 3},
		},
	}
}

func strptr(s string) *string { return &s }

// testEnv wires an engine over in-memory stores
type testEnv struct {
	registry   *methods.Registry
	methodSt   *memstore.MethodStore
	metadata   *memstore.MetadataStore
	snapshots  *memstore.SnapshotStore
	overrides  *memstore.OverrideStore
	defaults   *memstore.DefaultStore
	aggregates *memstore.AggregateStore
	effects    *stubEffectSource
	engine     *Engine
}

// stubEffectSource serves canned effects; scope resolution has its own
// tests in the insights package
type stubEffectSource struct {
	effects []ResolvedEffect
	err     error
}

func (s *stubEffectSource) EffectsFor(ctx context.Context, symbol string, meta *contracts.InstrumentMeta, methodKey string, asOf time.Time) ([]ResolvedEffect, error) {
	return s.effects, s.err
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		methodSt:   memstore.NewMethodStore(),
		metadata:   memstore.NewMetadataStore(),
		snapshots:  memstore.NewSnapshotStore(),
		overrides:  memstore.NewOverrideStore(),
		defaults:   memstore.NewDefaultStore(),
		aggregates: memstore.NewAggregateStore(),
		effects:    &stubEffectSource{},
	}

	formulas := formula.Default()
	env.registry = methods.NewRegistry(env.methodSt, formulas.Has, testLogger())

	version := factorVersion()
	if err := env.methodSt.InsertMethod(ctx, contracts.ValuationMethod{
		MethodKey:  "equity_factor_v1",
		Name:       "Equity Factor Model v1",
		IsBuiltin:  true,
		Status:     contracts.MethodStatusActive,
		AssetScope: contracts.AssetScope{Kinds: []string{"stock"}},
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert method: %v", err)
	}
	if err := env.methodSt.InsertVersion(ctx, *version); err != nil {
		t.Fatalf("insert version: %v", err)
	}

	env.metadata.Put(contracts.InstrumentMeta{
		Symbol:      "AAPL",
		Kind:        "stock",
		AssetClass:  "equity",
		Market:      "NASDAQ",
		IndustryTag: "tech",
	})
	env.metadata.Put(contracts.InstrumentMeta{
		Symbol:     "T10Y",
		Kind:       "bond",
		AssetClass: "fixed_income",
	})

	resolver := NewResolver(env.snapshots, env.overrides, env.defaults, env.aggregates)
	evaluator := NewEvaluator(formulas)
	env.engine = NewEngine(env.registry, env.metadata, resolver, evaluator, env.effects, testLogger())
	return env
}

var asOf = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

// seedBaseline gives AAPL a fresh price snapshot and subjective
// overrides so the base fair value is 100 * 1.05 * 0.94 = 98.7
func (env *testEnv) seedBaseline(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	env.snapshots.Put(contracts.ValuationObjectiveMetricSnapshot{
		Symbol: "AAPL", MethodKey: "equity_factor_v1", MetricKey: "price",
		AsOfDate: asOf, Value: 100, Quality: contracts.QualityFresh, Source: "market_close",
	})
	for key, val := range map[string]float64{"momentum": 0.10, "volatility": 0.30} {
		if err := env.overrides.Upsert(ctx, contracts.ValuationSubjectiveOverride{
			Symbol: "AAPL", MethodKey: "equity_factor_v1", InputKey: key,
			Value: val, UpdatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("upsert override: %v", err)
		}
	}
}
