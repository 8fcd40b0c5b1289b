package insights

import (
	"context"
	"fmt"

	"github.com/vantagefolio/valora/internal/contracts"
)

// ScopeMatch is the result of resolving one insight against one
// instrument: whether it is targeted and which include rules admitted
// it, for the audit trail.
type ScopeMatch struct {
	Targeted       bool
	MatchedRuleIDs []string
	ScopeLabels    []string
}

// ScopeResolver decides which instruments an insight targets. Exclude
// rules always win over include rules, and a manual target exclusion
// wins over everything.
// ⭐ SSOT: 타겟 판정 로직은 여기서만
type ScopeResolver struct {
	reader contracts.InsightReader
}

// NewScopeResolver creates a new scope resolver
func NewScopeResolver(reader contracts.InsightReader) *ScopeResolver {
	return &ScopeResolver{reader: reader}
}

// Resolve evaluates one insight's rules against an instrument
func (r *ScopeResolver) Resolve(ctx context.Context, insightID string, meta *contracts.InstrumentMeta) (ScopeMatch, error) {
	rules, err := r.reader.ListScopeRules(ctx, insightID)
	if err != nil {
		return ScopeMatch{}, fmt.Errorf("list scope rules %s: %w", insightID, err)
	}

	match := MatchRules(rules, meta)
	if !match.Targeted {
		return match, nil
	}

	exclusions, err := r.reader.ListExclusions(ctx, insightID)
	if err != nil {
		return ScopeMatch{}, fmt.Errorf("list exclusions %s: %w", insightID, err)
	}
	for _, ex := range exclusions {
		if meta != nil && ex.Symbol == meta.Symbol {
			return ScopeMatch{}, nil
		}
	}

	return match, nil
}

// MatchRules runs the pure rule evaluation: at least one enabled
// include rule must match, and no enabled exclude rule may match.
func MatchRules(rules []contracts.InsightScopeRule, meta *contracts.InstrumentMeta) ScopeMatch {
	var match ScopeMatch
	for _, rule := range rules {
		if !rule.Enabled || !rule.Matches(meta) {
			continue
		}
		if rule.Mode == contracts.ScopeExclude {
			return ScopeMatch{}
		}
		match.Targeted = true
		match.MatchedRuleIDs = append(match.MatchedRuleIDs, rule.ID)
		match.ScopeLabels = append(match.ScopeLabels, rule.Label())
	}
	return match
}
