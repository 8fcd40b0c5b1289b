package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/valuation"
)

// EffectSource feeds the valuation engine the effects applicable to
// one instrument: active insights whose scope admits the instrument,
// with each enabled channel's dated value selected for asOf. A channel
// with no point at or before asOf stays silent.
type EffectSource struct {
	reader   contracts.InsightReader
	resolver *ScopeResolver
}

// NewEffectSource creates a new effect source
func NewEffectSource(reader contracts.InsightReader) *EffectSource {
	return &EffectSource{reader: reader, resolver: NewScopeResolver(reader)}
}

var _ valuation.EffectSource = (*EffectSource)(nil)

// EffectsFor implements valuation.EffectSource
func (s *EffectSource) EffectsFor(ctx context.Context, symbol string, meta *contracts.InstrumentMeta, methodKey string, asOf time.Time) ([]valuation.ResolvedEffect, error) {
	insights, err := s.reader.ListActiveInsights(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("list active insights: %w", err)
	}

	var effects []valuation.ResolvedEffect
	for _, insight := range insights {
		match, err := s.resolver.Resolve(ctx, insight.ID, meta)
		if err != nil {
			return nil, err
		}
		if !match.Targeted {
			continue
		}

		channels, err := s.reader.ListChannels(ctx, insight.ID)
		if err != nil {
			return nil, fmt.Errorf("list channels %s: %w", insight.ID, err)
		}
		for _, channel := range channels {
			if !channel.Enabled || channel.MethodKey != methodKey {
				continue
			}

			points, err := s.reader.ListPoints(ctx, channel.ID)
			if err != nil {
				return nil, fmt.Errorf("list points %s: %w", channel.ID, err)
			}
			value := contracts.EffectiveValueAt(points, asOf)
			if value == nil {
				continue
			}

			effects = append(effects, valuation.ResolvedEffect{
				Insight:     insight,
				Channel:     channel,
				Value:       *value,
				ScopeLabels: match.ScopeLabels,
			})
		}
	}

	return effects, nil
}
