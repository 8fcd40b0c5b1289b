package formula

import (
	"math"
	"sort"
)

// Args carries everything a formula may read: dependency values in
// dependsOn order, the same values keyed by node key, the version's
// param schema, and the node's own resolved input (for leaf nodes).
type Args struct {
	DepKeys []string
	Deps    []*float64
	DepMap  map[string]*float64
	Params  map[string]float64
	Input   *float64
}

// Func is a pure metric computation. A nil result means the node is
// unresolvable from its inputs; it is never an error.
type Func func(args Args) *float64

// Registry is a closed set of formulas keyed by formula id. Unknown ids
// are rejected at publish time so evaluation stays total.
// ⭐ SSOT: formula dispatch lives here
type Registry struct {
	funcs map[string]Func
}

// Has reports whether the formula id is known
func (r *Registry) Has(id string) bool {
	_, ok := r.funcs[id]
	return ok
}

// Eval runs the formula. ok=false means the id is unknown (a publish
// validation should have caught it).
func (r *Registry) Eval(id string, args Args) (value *float64, ok bool) {
	fn, ok := r.funcs[id]
	if !ok {
		return nil, false
	}
	return fn(args), true
}

// IDs returns all registered formula ids, sorted
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.funcs))
	for id := range r.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default builds the registry with the shipped formula set
func Default() *Registry {
	return &Registry{funcs: map[string]Func{
		// input passes the node's resolved input through; the leaf
		// formula for top-layer nodes
		"input": func(a Args) *float64 {
			return a.Input
		},

		"identity": func(a Args) *float64 {
			if len(a.Deps) == 0 {
				return nil
			}
			return a.Deps[0]
		},

		"sum": func(a Args) *float64 {
			if !allSet(a.Deps) {
				return nil
			}
			total := 0.0
			for _, d := range a.Deps {
				total += *d
			}
			return &total
		},

		"diff": func(a Args) *float64 {
			if len(a.Deps) < 2 || !allSet(a.Deps[:2]) {
				return nil
			}
			v := *a.Deps[0] - *a.Deps[1]
			return &v
		},

		"product": func(a Args) *float64 {
			if len(a.Deps) == 0 || !allSet(a.Deps) {
				return nil
			}
			v := 1.0
			for _, d := range a.Deps {
				v *= *d
			}
			return &v
		},

		"ratio": func(a Args) *float64 {
			if len(a.Deps) < 2 || !allSet(a.Deps[:2]) || *a.Deps[1] == 0 {
				return nil
			}
			v := *a.Deps[0] / *a.Deps[1]
			return &v
		},

		// weighted_sum weights each dependency by the
		// "<depKey>_weight" param (weight 1 when absent)
		"weighted_sum": func(a Args) *float64 {
			if len(a.Deps) == 0 || !allSet(a.Deps) {
				return nil
			}
			total := 0.0
			for i, d := range a.Deps {
				weight := 1.0
				if w, ok := a.Params[a.DepKeys[i]+"_weight"]; ok {
					weight = w
				}
				total += *d * weight
			}
			return &total
		},

		"scale": func(a Args) *float64 {
			if len(a.Deps) == 0 || a.Deps[0] == nil {
				return nil
			}
			factor := 1.0
			if f, ok := a.Params["factor"]; ok {
				factor = f
			}
			v := *a.Deps[0] * factor
			return &v
		},

		"clamp": func(a Args) *float64 {
			if len(a.Deps) == 0 || a.Deps[0] == nil {
				return nil
			}
			v := *a.Deps[0]
			if lo, ok := a.Params["min"]; ok && v < lo {
				v = lo
			}
			if hi, ok := a.Params["max"]; ok && v > hi {
				v = hi
			}
			return &v
		},

		// momentum_tilt: base * (1 + momentum * momentumWeight)
		// deps: [base, momentum]
		"momentum_tilt": func(a Args) *float64 {
			if len(a.Deps) < 2 || !allSet(a.Deps[:2]) {
				return nil
			}
			v := *a.Deps[0] * (1 + *a.Deps[1]*a.Params["momentumWeight"])
			return &v
		},

		// volatility_discount: base * (1 - volatility * volatilityPenalty)
		// deps: [base, volatility]
		"volatility_discount": func(a Args) *float64 {
			if len(a.Deps) < 2 || !allSet(a.Deps[:2]) {
				return nil
			}
			v := *a.Deps[0] * (1 - *a.Deps[1]*a.Params["volatilityPenalty"])
			return &v
		},

		// return_gap: fair/price - 1, deps: [fair, price]
		"return_gap": func(a Args) *float64 {
			if len(a.Deps) < 2 || !allSet(a.Deps[:2]) || *a.Deps[1] == 0 {
				return nil
			}
			v := *a.Deps[0] / *a.Deps[1] - 1
			return &v
		},

		// risk_spread: |fair - price| / price, deps: [fair, price]
		"risk_spread": func(a Args) *float64 {
			if len(a.Deps) < 2 || !allSet(a.Deps[:2]) || *a.Deps[1] == 0 {
				return nil
			}
			v := math.Abs(*a.Deps[0]-*a.Deps[1]) / *a.Deps[1]
			return &v
		},
	}}
}

func allSet(vals []*float64) bool {
	for _, v := range vals {
		if v == nil {
			return false
		}
	}
	return true
}
