package methods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/formula"
	"github.com/vantagefolio/valora/internal/memstore"
	"github.com/vantagefolio/valora/pkg/config"
	"github.com/vantagefolio/valora/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json"})
}

func newTestRegistry() (*Registry, *memstore.MethodStore) {
	store := memstore.NewMethodStore()
	return NewRegistry(store, formula.Default().Has, testLogger()), store
}

func simpleDraft() VersionDraft {
	return VersionDraft{
		Nodes: []contracts.ValuationMetricNode{
			{Key: "price", Label: "Price", Layer: contracts.LayerTop, Unit: contracts.UnitCurrency, FormulaID: "input"},
			{Key: "fair_value", Label: "Fair Value", Layer: contracts.LayerOutput, Unit: contracts.UnitCurrency, DependsOn: []string{"price"}, FormulaID: "identity"},
		},
		MetricSchema: contracts.MetricSchema{
			RequiredInputs: []string{"price"},
			Outputs:        []string{"fair_value"},
		},
		InputSchema: []contracts.ValuationMethodInputField{
			{Key: "price", Label: "Price", Kind: contracts.InputObjective, Unit: contracts.UnitCurrency, DefaultPolicy: contracts.DefaultNone},
		},
	}
}

func seedBuiltin(t *testing.T, store *memstore.MethodStore, key string) {
	t.Helper()
	ctx := context.Background()

	err := store.InsertMethod(ctx, contracts.ValuationMethod{
		MethodKey: key,
		Name:      "Builtin " + key,
		IsBuiltin: true,
		Status:    contracts.MethodStatusActive,
		AssetScope: contracts.AssetScope{
			Kinds: []string{"stock"},
		},
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	draft := simpleDraft()
	err = store.InsertVersion(ctx, contracts.ValuationMethodVersion{
		ID:           key + "-v1",
		MethodKey:    key,
		Version:      1,
		Nodes:        draft.Nodes,
		MetricSchema: draft.MetricSchema,
		InputSchema:  draft.InputSchema,
		PublishedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestCreateCustom(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	detail, err := reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "dcf_custom", Name: "Custom DCF"})
	require.NoError(t, err)
	assert.Equal(t, "dcf_custom", detail.Method.MethodKey)
	assert.False(t, detail.Method.IsBuiltin)
	assert.Empty(t, detail.Versions)

	// Key collision
	_, err = reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "dcf_custom", Name: "Again"})
	var verr contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "method_key", verr.Field)

	// Missing required fields
	_, err = reg.CreateCustom(ctx, CreateMethodInput{Name: "No Key"})
	assert.ErrorAs(t, err, &verr)
	_, err = reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "no_name"})
	assert.ErrorAs(t, err, &verr)

	// Reserved prefix
	_, err = reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "builtin:sneaky", Name: "Sneaky"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "method_key", verr.Field)
}

func TestPublishVersionMonotonic(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "m1", Name: "M1"})
	require.NoError(t, err)

	detail, err := reg.PublishVersion(ctx, "m1", simpleDraft())
	require.NoError(t, err)
	require.Len(t, detail.Versions, 1)
	assert.Equal(t, 1, detail.Versions[0].Version)

	detail, err = reg.PublishVersion(ctx, "m1", simpleDraft())
	require.NoError(t, err)
	require.Len(t, detail.Versions, 2)
	assert.Equal(t, 2, detail.Versions[1].Version)
	assert.NotEqual(t, detail.Versions[0].ID, detail.Versions[1].ID)
}

func TestPublishVersionBuiltinReadOnly(t *testing.T) {
	reg, store := newTestRegistry()
	seedBuiltin(t, store, "builtin_a")

	_, err := reg.PublishVersion(context.Background(), "builtin_a", simpleDraft())
	var imErr contracts.ImmutableMethodError
	require.ErrorAs(t, err, &imErr)
	assert.Equal(t, "builtin_a", imErr.MethodKey)

	_, err = reg.Archive(context.Background(), "builtin_a")
	assert.ErrorAs(t, err, &imErr)

	_, err = reg.UpsertInputSchema(context.Background(), "builtin_a", nil)
	assert.ErrorAs(t, err, &imErr)
}

func TestPublishVersionRejectsBadGraphs(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()
	_, err := reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "m2", Name: "M2"})
	require.NoError(t, err)

	cases := []struct {
		name  string
		nodes []contracts.ValuationMetricNode
	}{
		{
			name: "unknown formula",
			nodes: []contracts.ValuationMetricNode{
				{Key: "a", Layer: contracts.LayerTop, FormulaID: "no_such_formula"},
			},
		},
		{
			name: "dangling dependency",
			nodes: []contracts.ValuationMetricNode{
				{Key: "a", Layer: contracts.LayerTop, FormulaID: "input"},
				{Key: "b", Layer: contracts.LayerOutput, DependsOn: []string{"missing"}, FormulaID: "identity"},
			},
		},
		{
			name: "dependency in later layer",
			nodes: []contracts.ValuationMetricNode{
				{Key: "a", Layer: contracts.LayerFirstOrder, DependsOn: []string{"b"}, FormulaID: "identity"},
				{Key: "b", Layer: contracts.LayerOutput, DependsOn: []string{"a"}, FormulaID: "identity"},
			},
		},
		{
			name: "cycle within layer",
			nodes: []contracts.ValuationMetricNode{
				{Key: "a", Layer: contracts.LayerTop, DependsOn: []string{"b"}, FormulaID: "identity"},
				{Key: "b", Layer: contracts.LayerTop, DependsOn: []string{"a"}, FormulaID: "identity"},
			},
		},
		{
			name:  "empty graph",
			nodes: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := simpleDraft()
			draft.Nodes = tc.nodes
			_, err := reg.PublishVersion(ctx, "m2", draft)
			var verr contracts.ValidationError
			assert.ErrorAs(t, err, &verr, "expected validation error")
		})
	}
}

func TestPublishVersionWindow(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()
	_, err := reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "m3", Name: "M3"})
	require.NoError(t, err)

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	draft := simpleDraft()
	draft.EffectiveFrom = &from
	draft.EffectiveTo = &to

	_, err = reg.PublishVersion(ctx, "m3", draft)
	var verr contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "effective_from", verr.Field)
}

func TestCloneBuiltin(t *testing.T) {
	reg, store := newTestRegistry()
	seedBuiltin(t, store, "builtin_b")
	ctx := context.Background()

	clone, err := reg.CloneBuiltin(ctx, "builtin_b", "my_copy", "")
	require.NoError(t, err)
	assert.False(t, clone.Method.IsBuiltin)
	assert.Equal(t, "Builtin builtin_b (copy)", clone.Method.Name)
	require.Len(t, clone.Versions, 1)
	assert.Equal(t, 1, clone.Versions[0].Version)
	assert.Len(t, clone.Versions[0].Nodes, 2)

	// Clones are editable
	detail, err := reg.PublishVersion(ctx, "my_copy", simpleDraft())
	require.NoError(t, err)
	assert.Len(t, detail.Versions, 2)

	// Only builtins can be cloned
	_, err = reg.CloneBuiltin(ctx, "my_copy", "copy_of_copy", "")
	var verr contracts.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSetActiveVersion(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()
	_, err := reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "m4", Name: "M4"})
	require.NoError(t, err)

	d1, err := reg.PublishVersion(ctx, "m4", simpleDraft())
	require.NoError(t, err)
	d2, err := reg.PublishVersion(ctx, "m4", simpleDraft())
	require.NoError(t, err)

	// Without a pointer the newest version is active
	assert.Equal(t, 2, d2.ActiveVersion().Version)

	// Pin version 1
	detail, err := reg.SetActiveVersion(ctx, "m4", d1.Versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.ActiveVersion().Version)

	// Version must belong to the method
	_, err = reg.SetActiveVersion(ctx, "m4", "not-a-version")
	var nfErr contracts.NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestListAndArchive(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	for _, key := range []string{"alpha_model", "beta_model"} {
		_, err := reg.CreateCustom(ctx, CreateMethodInput{MethodKey: key, Name: key})
		require.NoError(t, err)
	}

	_, err := reg.Archive(ctx, "beta_model")
	require.NoError(t, err)

	list, err := reg.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alpha_model", list[0].MethodKey)

	list, err = reg.List(ctx, ListFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = reg.List(ctx, ListFilter{Query: "ALPHA"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alpha_model", list[0].MethodKey)
}

func TestResolveForInstrument(t *testing.T) {
	reg, store := newTestRegistry()
	seedBuiltin(t, store, "equity_builtin") // scope kinds=[stock]
	ctx := context.Background()

	stock := &contracts.InstrumentMeta{Symbol: "AAPL", Kind: "stock", AssetClass: "equity"}
	bond := &contracts.InstrumentMeta{Symbol: "T10Y", Kind: "bond", AssetClass: "fixed_income"}

	detail, err := reg.ResolveForInstrument(ctx, stock)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "equity_builtin", detail.Method.MethodKey)

	// No scope match
	detail, err = reg.ResolveForInstrument(ctx, bond)
	require.NoError(t, err)
	assert.Nil(t, detail)

	// Methods without versions never resolve
	_, err = reg.CreateCustom(ctx, CreateMethodInput{MethodKey: "draft_only", Name: "Draft"})
	require.NoError(t, err)
	detail, err = reg.ResolveForInstrument(ctx, bond)
	require.NoError(t, err)
	assert.Nil(t, detail)
}
