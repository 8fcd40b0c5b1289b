package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/formula"
)

func TestEvaluateFactorGraph(t *testing.T) {
	evaluator := NewEvaluator(formula.Default())
	version := factorVersion()

	inputs := map[string]*float64{
		"price":      fptr(100),
		"momentum":   fptr(0.10),
		"volatility": fptr(0.30),
	}

	values := evaluator.Evaluate(version, inputs)

	require.NotNil(t, values["momentum_value"])
	assert.InDelta(t, 105, *values["momentum_value"], 1e-9)
	require.NotNil(t, values["fair_value"])
	assert.InDelta(t, 98.7, *values["fair_value"], 1e-9)
	require.NotNil(t, values["expected_return"])
	assert.InDelta(t, -0.013, *values["expected_return"], 1e-9)
}

func TestEvaluateNilPropagation(t *testing.T) {
	evaluator := NewEvaluator(formula.Default())
	version := factorVersion()

	inputs := map[string]*float64{
		"price":    fptr(100),
		"momentum": fptr(0.10),
		// volatility unresolved
	}

	values := evaluator.Evaluate(version, inputs)

	require.NotNil(t, values["momentum_value"])
	assert.Nil(t, values["fair_value"])
	assert.Nil(t, values["expected_return"])
	assert.Nil(t, values["valuation_spread"])
}

func TestOrderRespectsDependencies(t *testing.T) {
	evaluator := NewEvaluator(formula.Default())
	version := factorVersion()

	order := evaluator.Order(version)
	require.Len(t, order, len(version.Nodes))

	position := make(map[string]int, len(order))
	for i, node := range order {
		position[node.Key] = i
	}
	for _, node := range version.Nodes {
		for _, dep := range node.DependsOn {
			assert.Less(t, position[dep], position[node.Key],
				"%s must come before %s", dep, node.Key)
		}
	}
}

func TestOrderDeterministic(t *testing.T) {
	evaluator := NewEvaluator(formula.Default())
	version := factorVersion()

	first := evaluator.Order(version)
	for i := 0; i < 5; i++ {
		again := evaluator.Order(version)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].Key, again[j].Key)
		}
	}
}

func TestRepropagateOnlyTouchesDependents(t *testing.T) {
	evaluator := NewEvaluator(formula.Default())
	version := factorVersion()

	inputs := map[string]*float64{
		"price":      fptr(100),
		"momentum":   fptr(0.10),
		"volatility": fptr(0.30),
	}
	values := evaluator.Evaluate(version, inputs)

	// Bump momentum and re-propagate: price and volatility stay as
	// they were, everything downstream of momentum recomputes.
	values["momentum"] = fptr(0.20)
	evaluator.Repropagate(version, values, inputs, map[string]bool{"momentum": true}, map[string]bool{"momentum": true})

	assert.InDelta(t, 100, *values["price"], 1e-9)
	assert.InDelta(t, 110, *values["momentum_value"], 1e-9)
	assert.InDelta(t, 103.4, *values["fair_value"], 1e-9)
	assert.InDelta(t, 0.034, *values["expected_return"], 1e-9)
}

func TestEvaluateWeightedSumParams(t *testing.T) {
	evaluator := NewEvaluator(formula.Default())
	version := &contracts.ValuationMethodVersion{
		MethodKey: "blend",
		Version:   1,
		Nodes: []contracts.ValuationMetricNode{
			{Key: "a", Layer: contracts.LayerTop, FormulaID: "input"},
			{Key: "b", Layer: contracts.LayerTop, FormulaID: "input"},
			{Key: "blend", Layer: contracts.LayerOutput, DependsOn: []string{"a", "b"}, FormulaID: "weighted_sum"},
		},
		ParamSchema: map[string]float64{"a_weight": 0.7, "b_weight": 0.3},
	}

	values := evaluator.Evaluate(version, map[string]*float64{"a": fptr(10), "b": fptr(20)})
	require.NotNil(t, values["blend"])
	assert.InDelta(t, 13, *values["blend"], 1e-9)
}
