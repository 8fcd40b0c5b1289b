package valuation

import (
	"sort"

	"github.com/vantagefolio/valora/internal/contracts"
)

// ResolvedEffect is one applicable channel with its dated value already
// selected and the scope labels that admitted its insight.
type ResolvedEffect struct {
	Insight     contracts.Insight
	Channel     contracts.InsightEffectChannel
	Value       float64
	ScopeLabels []string
}

// Stacker folds resolved effects into a base metric map, stage by
// stage, and records the audit trail.
//
// Within a stage, application order is (priority, channel id, insight
// id) so identical inputs always stack identically. After a stage's
// effects land, only the transitive dependents of the touched nodes
// are recomputed; an effected node keeps its effected value for the
// rest of the pass.
type Stacker struct {
	evaluator *Evaluator
}

// NewStacker creates a new effect stacker
func NewStacker(evaluator *Evaluator) *Stacker {
	return &Stacker{evaluator: evaluator}
}

// Apply returns the adjusted metric map and the applied-effect audit
// trail. The base map is not modified.
func (s *Stacker) Apply(
	version *contracts.ValuationMethodVersion,
	base map[string]*float64,
	inputs map[string]*float64,
	effects []ResolvedEffect,
) (map[string]*float64, []contracts.ValuationAppliedEffect) {
	values := make(map[string]*float64, len(base))
	for k, v := range base {
		values[k] = v
	}

	var trail []contracts.ValuationAppliedEffect
	effected := make(map[string]bool)

	for _, stage := range contracts.MetricLayerOrder {
		staged := filterStage(effects, stage)
		if len(staged) == 0 {
			continue
		}
		sort.SliceStable(staged, func(i, j int) bool {
			a, b := staged[i], staged[j]
			if a.Channel.Priority != b.Channel.Priority {
				return a.Channel.Priority < b.Channel.Priority
			}
			if a.Channel.ID != b.Channel.ID {
				return a.Channel.ID < b.Channel.ID
			}
			return a.Insight.ID < b.Insight.ID
		})

		changed := make(map[string]bool)
		for _, eff := range staged {
			key := eff.Channel.MetricKey
			if _, ok := version.Node(key); !ok {
				continue
			}

			before := values[key]
			after, applied := applyOperator(eff.Channel.Operator, before, eff.Value)
			if !applied {
				continue
			}

			values[key] = after
			changed[key] = true
			effected[key] = true
			trail = append(trail, contracts.ValuationAppliedEffect{
				InsightID:    eff.Insight.ID,
				InsightTitle: eff.Insight.Title,
				ChannelID:    eff.Channel.ID,
				MetricKey:    key,
				Stage:        stage,
				Operator:     eff.Channel.Operator,
				Priority:     eff.Channel.Priority,
				Value:        eff.Value,
				BeforeValue:  before,
				AfterValue:   after,
				ScopeLabels:  eff.ScopeLabels,
			})
		}

		if len(changed) > 0 {
			s.evaluator.Repropagate(version, values, inputs, changed, effected)
		}
	}

	return values, trail
}

func filterStage(effects []ResolvedEffect, stage contracts.MetricLayer) []ResolvedEffect {
	var out []ResolvedEffect
	for _, e := range effects {
		if e.Channel.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// applyOperator folds one effect value into the running metric value.
// set works on a nil base; the arithmetic operators are inert on nil
// so a missing metric never fabricates a number.
func applyOperator(op contracts.EffectOperator, before *float64, value float64) (*float64, bool) {
	if op == contracts.OpSet {
		v := value
		return &v, true
	}
	if before == nil {
		return nil, false
	}

	var v float64
	switch op {
	case contracts.OpAdd:
		v = *before + value
	case contracts.OpMul:
		v = *before * value
	case contracts.OpMin:
		v = *before
		if value < v {
			v = value
		}
	case contracts.OpMax:
		v = *before
		if value > v {
			v = value
		}
	default:
		return nil, false
	}
	return &v, true
}
