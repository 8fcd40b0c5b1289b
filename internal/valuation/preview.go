package valuation

import (
	"context"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/methods"
	"github.com/vantagefolio/valora/pkg/logger"
)

// EffectSource yields the effects applicable to one instrument under
// one method on one date, scope rules and exclusions already applied.
// The insights package provides the production implementation.
type EffectSource interface {
	EffectsFor(ctx context.Context, symbol string, meta *contracts.InstrumentMeta, methodKey string, asOf time.Time) ([]ResolvedEffect, error)
}

// Engine runs the full valuation pass: method resolution, input
// resolution, base evaluation, effect stacking, confidence grading.
// ⭐ SSOT: 밸류에이션 오케스트레이션은 여기서만
type Engine struct {
	registry  *methods.Registry
	metadata  contracts.MetadataProvider
	resolver  *Resolver
	evaluator *Evaluator
	stacker   *Stacker
	effects   EffectSource
	logger    *logger.Logger
}

// NewEngine creates a new valuation engine
func NewEngine(
	registry *methods.Registry,
	metadata contracts.MetadataProvider,
	resolver *Resolver,
	evaluator *Evaluator,
	effects EffectSource,
	log *logger.Logger,
) *Engine {
	return &Engine{
		registry:  registry,
		metadata:  metadata,
		resolver:  resolver,
		evaluator: evaluator,
		stacker:   NewStacker(evaluator),
		effects:   effects,
		logger:    log,
	}
}

// ComputeBySymbol values one instrument. An empty methodKey resolves
// the method from the instrument's asset scope; when nothing matches
// the preview comes back not-applicable rather than as an error.
func (e *Engine) ComputeBySymbol(ctx context.Context, symbol, methodKey string, asOf time.Time) (*contracts.ValuationAdjustmentPreview, error) {
	meta, err := e.metadata.GetInstrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, contracts.NewNotFound("instrument", symbol)
	}

	var detail *contracts.ValuationMethodDetail
	if methodKey == "" {
		detail, err = e.registry.ResolveForInstrument(ctx, meta)
		if err != nil {
			return nil, err
		}
		if detail == nil {
			return notApplicable(symbol, asOf, "no valuation method matches the instrument"), nil
		}
	} else {
		detail, err = e.registry.Get(ctx, methodKey)
		if err != nil {
			return nil, err
		}
	}

	version := detail.ActiveVersion()
	if version == nil {
		return notApplicable(symbol, asOf, "method has no published versions"), nil
	}

	return e.compute(ctx, symbol, meta, detail, version, asOf)
}

func (e *Engine) compute(
	ctx context.Context,
	symbol string,
	meta *contracts.InstrumentMeta,
	detail *contracts.ValuationMethodDetail,
	version *contracts.ValuationMethodVersion,
	asOf time.Time,
) (*contracts.ValuationAdjustmentPreview, error) {
	items, inputValues, err := e.resolver.Resolve(ctx, version, meta, symbol, asOf)
	if err != nil {
		return nil, err
	}

	base := e.evaluator.Evaluate(version, inputValues)

	resolved, err := e.effects.EffectsFor(ctx, symbol, meta, detail.Method.MethodKey, asOf)
	if err != nil {
		return nil, err
	}
	adjusted, trail := e.stacker.Apply(version, base, inputValues, resolved)

	outputKey := pickOutputKey(version)
	confidence, reasons := AssessConfidence(version, items)
	if outputKey == "" || base[outputKey] == nil {
		// Inputs were too sparse for a headline value. The preview
		// still carries the breakdown so the caller can see why.
		confidence = contracts.ConfidenceNotApplicable
	}

	preview := &contracts.ValuationAdjustmentPreview{
		Symbol:             symbol,
		MethodKey:          detail.Method.MethodKey,
		MethodName:         detail.Method.Name,
		VersionID:          version.ID,
		Version:            version.Version,
		OutputKey:          outputKey,
		AsOfDate:           asOf,
		BaseMetrics:        base,
		AdjustedMetrics:    adjusted,
		AppliedEffects:     trail,
		Inputs:             items,
		Confidence:         confidence,
		DegradationReasons: reasons,
		ComputedAt:         time.Now().UTC(),
	}
	if outputKey != "" {
		preview.BaseValue = base[outputKey]
		preview.AdjustedValue = adjusted[outputKey]
	}

	e.logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"method_key": detail.Method.MethodKey,
		"version":    version.Version,
		"effects":    len(trail),
		"confidence": string(confidence),
	}).Debug("Valuation computed")

	return preview, nil
}

// pickOutputKey selects the headline metric: the first declared output
// present in the graph, falling back to the first output-layer node.
func pickOutputKey(version *contracts.ValuationMethodVersion) string {
	for _, key := range version.MetricSchema.Outputs {
		if _, ok := version.Node(key); ok {
			return key
		}
	}
	for i := range version.Nodes {
		if version.Nodes[i].Layer == contracts.LayerOutput {
			return version.Nodes[i].Key
		}
	}
	return ""
}

func notApplicable(symbol string, asOf time.Time, reason string) *contracts.ValuationAdjustmentPreview {
	return &contracts.ValuationAdjustmentPreview{
		Symbol:        symbol,
		AsOfDate:      asOf,
		Confidence:    contracts.ConfidenceNotApplicable,
		NotApplicable: true,
		Reason:        reason,
		ComputedAt:    time.Now().UTC(),
	}
}
