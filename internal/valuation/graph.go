package valuation

import (
	"sort"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/formula"
)

// Evaluator computes a version's metric graph bottom-up. Nodes resolve
// to nil when their formula cannot produce a value; nil propagates, it
// never aborts the evaluation.
type Evaluator struct {
	formulas *formula.Registry
}

// NewEvaluator creates a new graph evaluator
func NewEvaluator(formulas *formula.Registry) *Evaluator {
	return &Evaluator{formulas: formulas}
}

// Order returns the version's nodes in evaluation order: layer
// progression first, then dependency order inside a layer, with node
// key as the final tie-break so runs are deterministic.
func (e *Evaluator) Order(version *contracts.ValuationMethodVersion) []contracts.ValuationMetricNode {
	nodes := append([]contracts.ValuationMetricNode(nil), version.Nodes...)
	sort.SliceStable(nodes, func(i, j int) bool {
		li, lj := contracts.LayerIndex(nodes[i].Layer), contracts.LayerIndex(nodes[j].Layer)
		if li != lj {
			return li < lj
		}
		return nodes[i].Key < nodes[j].Key
	})

	// Kahn within the layer-sorted slice: publish validation already
	// rejected cycles, so this always drains.
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	byKey := make(map[string]contracts.ValuationMetricNode, len(nodes))
	for _, n := range nodes {
		byKey[n.Key] = n
		indegree[n.Key] += 0
		for _, dep := range n.DependsOn {
			indegree[n.Key]++
			dependents[dep] = append(dependents[dep], n.Key)
		}
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n.Key] == 0 {
			queue = append(queue, n.Key)
		}
	}

	ordered := make([]contracts.ValuationMetricNode, 0, len(nodes))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byKey[key])

		next := append([]string(nil), dependents[key]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(ordered) != len(nodes) {
		// Unvalidated graph with a cycle; evaluate what we can
		return nodes
	}
	return ordered
}

// Evaluate computes every node from the resolved inputs
func (e *Evaluator) Evaluate(version *contracts.ValuationMethodVersion, inputs map[string]*float64) map[string]*float64 {
	values := make(map[string]*float64, len(version.Nodes))
	for _, node := range e.Order(version) {
		values[node.Key] = e.evalNode(version, node, values, inputs)
	}
	return values
}

// Repropagate recomputes the transitive dependents of the changed nodes
// in place. Nodes in frozen keep their current values even when their
// dependencies moved; effect-written nodes go there so an applied
// effect is never silently recomputed away.
func (e *Evaluator) Repropagate(
	version *contracts.ValuationMethodVersion,
	values map[string]*float64,
	inputs map[string]*float64,
	changed map[string]bool,
	frozen map[string]bool,
) {
	dirty := make(map[string]bool, len(changed))
	for k := range changed {
		dirty[k] = true
	}

	for _, node := range e.Order(version) {
		if dirty[node.Key] || frozen[node.Key] {
			continue
		}
		depDirty := false
		for _, dep := range node.DependsOn {
			if dirty[dep] {
				depDirty = true
				break
			}
		}
		if !depDirty {
			continue
		}
		values[node.Key] = e.evalNode(version, node, values, inputs)
		dirty[node.Key] = true
	}
}

func (e *Evaluator) evalNode(
	version *contracts.ValuationMethodVersion,
	node contracts.ValuationMetricNode,
	values map[string]*float64,
	inputs map[string]*float64,
) *float64 {
	deps := make([]*float64, len(node.DependsOn))
	depMap := make(map[string]*float64, len(node.DependsOn))
	for i, dep := range node.DependsOn {
		deps[i] = values[dep]
		depMap[dep] = values[dep]
	}

	value, ok := e.formulas.Eval(node.FormulaID, formula.Args{
		DepKeys: node.DependsOn,
		Deps:    deps,
		DepMap:  depMap,
		Params:  version.ParamSchema,
		Input:   inputs[node.Key],
	})
	if !ok {
		return nil
	}
	return value
}
