package methods

import (
	"fmt"

	"github.com/vantagefolio/valora/internal/contracts"
)

// ValidateGraph checks a version's metric graph at publish time so that
// evaluation stays total. Rules: unique node keys, no dangling
// dependsOn, dependencies never reach into a later layer, no cycles,
// every formula id known, every layer valid.
func ValidateGraph(nodes []contracts.ValuationMetricNode, knownFormula func(string) bool) error {
	if len(nodes) == 0 {
		return contracts.ValidationError{Field: "nodes", Message: "graph must have at least one node"}
	}

	byKey := make(map[string]*contracts.ValuationMetricNode, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		if node.Key == "" {
			return contracts.ValidationError{Field: "nodes", Message: "node key must not be empty"}
		}
		if _, dup := byKey[node.Key]; dup {
			return contracts.ValidationError{
				Field:   "nodes." + node.Key,
				Message: "duplicate node key",
			}
		}
		byKey[node.Key] = node

		if contracts.LayerIndex(node.Layer) < 0 {
			return contracts.ValidationError{
				Field:   "nodes." + node.Key + ".layer",
				Message: fmt.Sprintf("unknown layer %q", node.Layer),
			}
		}
		if knownFormula != nil && !knownFormula(node.FormulaID) {
			return contracts.ValidationError{
				Field:   "nodes." + node.Key + ".formula_id",
				Message: fmt.Sprintf("unknown formula %q", node.FormulaID),
			}
		}
	}

	for i := range nodes {
		node := &nodes[i]
		for _, dep := range node.DependsOn {
			depNode, ok := byKey[dep]
			if !ok {
				return contracts.ValidationError{
					Field:   "nodes." + node.Key + ".depends_on",
					Message: fmt.Sprintf("dangling dependency %q", dep),
				}
			}
			if contracts.LayerIndex(depNode.Layer) > contracts.LayerIndex(node.Layer) {
				return contracts.ValidationError{
					Field:   "nodes." + node.Key + ".depends_on",
					Message: fmt.Sprintf("dependency %q is in a later layer", dep),
				}
			}
		}
	}

	if err := checkAcyclic(nodes); err != nil {
		return err
	}

	return nil
}

// checkAcyclic runs Kahn's algorithm over the dependency edges
func checkAcyclic(nodes []contracts.ValuationMetricNode) error {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))

	for i := range nodes {
		node := &nodes[i]
		if _, ok := indegree[node.Key]; !ok {
			indegree[node.Key] = 0
		}
		for _, dep := range node.DependsOn {
			indegree[node.Key]++
			dependents[dep] = append(dependents[dep], node.Key)
		}
	}

	queue := make([]string, 0, len(nodes))
	for i := range nodes {
		if indegree[nodes[i].Key] == 0 {
			queue = append(queue, nodes[i].Key)
		}
	}

	visited := 0
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[key] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodes) {
		return contracts.ValidationError{Field: "nodes", Message: "dependency cycle detected"}
	}
	return nil
}

// ValidateInputSchema checks an input field list at publish time
func ValidateInputSchema(fields []contracts.ValuationMethodInputField) error {
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.Key == "" {
			return contracts.ValidationError{Field: "input_schema", Message: "input key must not be empty"}
		}
		if seen[f.Key] {
			return contracts.ValidationError{
				Field:   "input_schema." + f.Key,
				Message: "duplicate input key",
			}
		}
		seen[f.Key] = true

		switch f.Kind {
		case contracts.InputObjective, contracts.InputSubjective, contracts.InputDerived:
		default:
			return contracts.ValidationError{
				Field:   "input_schema." + f.Key + ".kind",
				Message: fmt.Sprintf("unknown input kind %q", f.Kind),
			}
		}

		if f.ObjectiveSource != nil && f.Kind != contracts.InputObjective {
			return contracts.ValidationError{
				Field:   "input_schema." + f.Key + ".objective_source",
				Message: "objective_source is only valid for objective inputs",
			}
		}
		if f.DefaultPolicy == contracts.DefaultConstant && f.DefaultValue == nil {
			return contracts.ValidationError{
				Field:   "input_schema." + f.Key + ".default_value",
				Message: "constant default policy requires a default value",
			}
		}
	}
	return nil
}
