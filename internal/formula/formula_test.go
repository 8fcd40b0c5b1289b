package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestRegistry_Has(t *testing.T) {
	reg := Default()

	for _, id := range []string{"input", "identity", "sum", "weighted_sum", "momentum_tilt", "volatility_discount", "return_gap"} {
		assert.True(t, reg.Has(id), "expected formula %s to be registered", id)
	}
	assert.False(t, reg.Has("neural_net"), "unknown ids must not resolve")
}

func TestRegistry_Eval_UnknownID(t *testing.T) {
	reg := Default()

	_, ok := reg.Eval("bogus", Args{})
	assert.False(t, ok)
}

func TestFormulas_NullPropagation(t *testing.T) {
	reg := Default()

	// Every dep-consuming formula yields nil when a dep is nil
	for _, id := range []string{"sum", "diff", "product", "ratio", "weighted_sum", "momentum_tilt", "volatility_discount", "return_gap", "risk_spread"} {
		v, ok := reg.Eval(id, Args{
			DepKeys: []string{"a", "b"},
			Deps:    []*float64{fp(1), nil},
			DepMap:  map[string]*float64{"a": fp(1), "b": nil},
		})
		require.True(t, ok, "formula %s should exist", id)
		assert.Nil(t, v, "formula %s should propagate nil", id)
	}
}

func TestFormulas_Arithmetic(t *testing.T) {
	reg := Default()

	tests := []struct {
		id   string
		args Args
		want float64
	}{
		{"identity", Args{DepKeys: []string{"a"}, Deps: []*float64{fp(3.5)}}, 3.5},
		{"sum", Args{DepKeys: []string{"a", "b"}, Deps: []*float64{fp(1), fp(2)}}, 3},
		{"diff", Args{DepKeys: []string{"a", "b"}, Deps: []*float64{fp(5), fp(2)}}, 3},
		{"product", Args{DepKeys: []string{"a", "b"}, Deps: []*float64{fp(4), fp(2.5)}}, 10},
		{"ratio", Args{DepKeys: []string{"a", "b"}, Deps: []*float64{fp(9), fp(3)}}, 3},
		{
			"weighted_sum",
			Args{
				DepKeys: []string{"momentum", "value"},
				Deps:    []*float64{fp(0.4), fp(0.6)},
				Params:  map[string]float64{"momentum_weight": 0.25, "value_weight": 0.75},
			},
			0.4*0.25 + 0.6*0.75,
		},
		{"scale", Args{DepKeys: []string{"a"}, Deps: []*float64{fp(10)}, Params: map[string]float64{"factor": 0.5}}, 5},
		{"clamp", Args{DepKeys: []string{"a"}, Deps: []*float64{fp(10)}, Params: map[string]float64{"min": 0, "max": 7}}, 7},
		{"return_gap", Args{DepKeys: []string{"fair", "price"}, Deps: []*float64{fp(110), fp(100)}}, 0.1},
		{"risk_spread", Args{DepKeys: []string{"fair", "price"}, Deps: []*float64{fp(90), fp(100)}}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := reg.Eval(tt.id, tt.args)
			require.True(t, ok)
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 1e-12)
		})
	}
}

func TestFormulas_FactorScenario(t *testing.T) {
	reg := Default()
	params := map[string]float64{"momentumWeight": 0.5, "volatilityPenalty": 0.2}

	price := 100.0
	tilted, ok := reg.Eval("momentum_tilt", Args{
		DepKeys: []string{"price", "momentum"},
		Deps:    []*float64{fp(price), fp(0.10)},
		Params:  params,
	})
	require.True(t, ok)
	require.NotNil(t, tilted)
	assert.InDelta(t, price*1.05, *tilted, 1e-12)

	fair, ok := reg.Eval("volatility_discount", Args{
		DepKeys: []string{"momentum_tilt", "volatility"},
		Deps:    []*float64{tilted, fp(0.30)},
		Params:  params,
	})
	require.True(t, ok)
	require.NotNil(t, fair)
	assert.InDelta(t, price*1.05*0.94, *fair, 1e-12)
}

func TestFormulas_ZeroDenominator(t *testing.T) {
	reg := Default()

	for _, id := range []string{"ratio", "return_gap", "risk_spread"} {
		v, ok := reg.Eval(id, Args{
			DepKeys: []string{"a", "b"},
			Deps:    []*float64{fp(1), fp(0)},
		})
		require.True(t, ok)
		assert.Nil(t, v, "formula %s must degrade on zero denominator, not panic", id)
	}

	// Sanity: no NaN leaks from shipped formulas on valid input
	v, _ := reg.Eval("risk_spread", Args{DepKeys: []string{"a", "b"}, Deps: []*float64{fp(1), fp(2)}})
	require.NotNil(t, v)
	assert.False(t, math.IsNaN(*v))
}
