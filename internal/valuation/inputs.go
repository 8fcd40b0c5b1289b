package valuation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
)

// Resolver turns a version's input schema into concrete values for one
// (symbol, asOf) pair. Resolution order per input:
//
//	objective:  exact snapshot → latest snapshot at or before asOf
//	            (downgraded to stale) → missing
//	subjective: user override → most specific applicable tiered
//	            default → median aggregate per the field's default
//	            policy → constant → missing
//	derived:    not resolved here; the metric graph computes it
//
// Missing is a value state, never an error.
type Resolver struct {
	snapshots  contracts.SnapshotStore
	overrides  contracts.OverrideStore
	defaults   contracts.DefaultStore
	aggregates contracts.AggregateProvider
}

// NewResolver creates a new input resolver
func NewResolver(
	snapshots contracts.SnapshotStore,
	overrides contracts.OverrideStore,
	defaults contracts.DefaultStore,
	aggregates contracts.AggregateProvider,
) *Resolver {
	return &Resolver{
		snapshots:  snapshots,
		overrides:  overrides,
		defaults:   defaults,
		aggregates: aggregates,
	}
}

// Resolve produces the input breakdown (display order, then key) and
// the value map the graph evaluator consumes.
func (r *Resolver) Resolve(
	ctx context.Context,
	version *contracts.ValuationMethodVersion,
	meta *contracts.InstrumentMeta,
	symbol string,
	asOf time.Time,
) ([]contracts.ValuationInputBreakdownItem, map[string]*float64, error) {
	fields := append([]contracts.ValuationMethodInputField(nil), version.InputSchema...)
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].DisplayOrder != fields[j].DisplayOrder {
			return fields[i].DisplayOrder < fields[j].DisplayOrder
		}
		return fields[i].Key < fields[j].Key
	})

	items := make([]contracts.ValuationInputBreakdownItem, 0, len(fields))
	values := make(map[string]*float64, len(fields))

	for _, field := range fields {
		if field.Kind == contracts.InputDerived {
			continue
		}

		var item contracts.ValuationInputBreakdownItem
		var err error
		switch field.Kind {
		case contracts.InputObjective:
			item, err = r.resolveObjective(ctx, version.MethodKey, field, symbol, asOf)
		case contracts.InputSubjective:
			item, err = r.resolveSubjective(ctx, version.MethodKey, field, meta, symbol)
		default:
			err = fmt.Errorf("unknown input kind %q for %q", field.Kind, field.Key)
		}
		if err != nil {
			return nil, nil, err
		}

		items = append(items, item)
		values[field.Key] = item.Value
	}

	return items, values, nil
}

func (r *Resolver) resolveObjective(
	ctx context.Context,
	methodKey string,
	field contracts.ValuationMethodInputField,
	symbol string,
	asOf time.Time,
) (contracts.ValuationInputBreakdownItem, error) {
	item := contracts.ValuationInputBreakdownItem{Key: field.Key, Kind: field.Kind}

	snap, err := r.snapshots.Get(ctx, symbol, methodKey, field.Key, asOf)
	if err != nil {
		return item, fmt.Errorf("snapshot lookup %s/%s: %w", symbol, field.Key, err)
	}
	if snap != nil {
		v := snap.Value
		item.Value = &v
		item.Quality = snap.Quality
		item.Source = "snapshot:" + snap.Source
		return item, nil
	}

	// No snapshot on the exact date; the newest earlier one serves,
	// downgraded to stale.
	snap, err = r.snapshots.Latest(ctx, symbol, methodKey, field.Key, asOf)
	if err != nil {
		return item, fmt.Errorf("snapshot lookup %s/%s: %w", symbol, field.Key, err)
	}
	if snap != nil {
		v := snap.Value
		item.Value = &v
		item.Quality = contracts.QualityStale
		if snap.Quality == contracts.QualityFallback {
			item.Quality = contracts.QualityFallback
		}
		item.Source = "snapshot:" + snap.Source
		return item, nil
	}

	item.Quality = contracts.QualityMissing
	item.Source = "missing"
	return item, nil
}

func (r *Resolver) resolveSubjective(
	ctx context.Context,
	methodKey string,
	field contracts.ValuationMethodInputField,
	meta *contracts.InstrumentMeta,
	symbol string,
) (contracts.ValuationInputBreakdownItem, error) {
	item := contracts.ValuationInputBreakdownItem{Key: field.Key, Kind: field.Kind}

	override, err := r.overrides.Get(ctx, symbol, methodKey, field.Key)
	if err != nil {
		return item, fmt.Errorf("override lookup %s/%s: %w", symbol, field.Key, err)
	}
	if override != nil {
		v := override.Value
		item.Value = &v
		item.Quality = contracts.QualityFresh
		item.Source = "override"
		return item, nil
	}

	defs, err := r.defaults.List(ctx, methodKey, field.Key)
	if err != nil {
		return item, fmt.Errorf("default lookup %s: %w", field.Key, err)
	}
	if best := pickDefault(defs, meta); best != nil {
		v := best.Value
		item.Value = &v
		item.Quality = contracts.QualityFresh
		item.Source = "default:" + defaultTier(*best)
		return item, nil
	}

	value, source, err := r.resolveAggregate(ctx, methodKey, field, meta)
	if err != nil {
		return item, err
	}
	if value != nil {
		item.Value = value
		item.Quality = contracts.QualityFallback
		item.Source = source
		return item, nil
	}

	if field.DefaultPolicy == contracts.DefaultConstant && field.DefaultValue != nil {
		v := *field.DefaultValue
		item.Value = &v
		item.Quality = contracts.QualityFallback
		item.Source = "constant"
		return item, nil
	}

	item.Quality = contracts.QualityMissing
	item.Source = "missing"
	return item, nil
}

// resolveAggregate walks the median cascade named by the field's
// default policy, falling through to broader tiers when a narrower one
// cannot be computed.
func (r *Resolver) resolveAggregate(
	ctx context.Context,
	methodKey string,
	field contracts.ValuationMethodInputField,
	meta *contracts.InstrumentMeta,
) (*float64, string, error) {
	tryIndustry := field.DefaultPolicy == contracts.DefaultIndustryMedian
	tryMarket := tryIndustry || field.DefaultPolicy == contracts.DefaultMarketMedian
	tryGlobal := tryMarket || field.DefaultPolicy == contracts.DefaultGlobalMedian

	if tryIndustry && meta != nil && meta.IndustryTag != "" {
		v, err := r.aggregates.IndustryMedian(ctx, methodKey, field.Key, meta.IndustryTag)
		if err != nil {
			return nil, "", fmt.Errorf("industry median %s: %w", field.Key, err)
		}
		if v != nil {
			return v, "aggregate:industry_median", nil
		}
	}
	if tryMarket && meta != nil && meta.Market != "" {
		v, err := r.aggregates.MarketMedian(ctx, methodKey, field.Key, meta.Market)
		if err != nil {
			return nil, "", fmt.Errorf("market median %s: %w", field.Key, err)
		}
		if v != nil {
			return v, "aggregate:market_median", nil
		}
	}
	if tryGlobal {
		v, err := r.aggregates.GlobalMedian(ctx, methodKey, field.Key)
		if err != nil {
			return nil, "", fmt.Errorf("global median %s: %w", field.Key, err)
		}
		if v != nil {
			return v, "aggregate:global_median", nil
		}
	}

	return nil, "", nil
}

// pickDefault selects the most specific applicable default. Equal
// specificity breaks on industry tag then market for determinism.
func pickDefault(defs []contracts.ValuationSubjectiveDefault, meta *contracts.InstrumentMeta) *contracts.ValuationSubjectiveDefault {
	var best *contracts.ValuationSubjectiveDefault
	for i := range defs {
		d := &defs[i]
		if !d.AppliesTo(meta) {
			continue
		}
		if best == nil || d.Specificity() > best.Specificity() ||
			(d.Specificity() == best.Specificity() && defaultSortKey(*d) < defaultSortKey(*best)) {
			best = d
		}
	}
	return best
}

func defaultSortKey(d contracts.ValuationSubjectiveDefault) string {
	industry, market := "", ""
	if d.IndustryTag != nil {
		industry = *d.IndustryTag
	}
	if d.Market != nil {
		market = *d.Market
	}
	return industry + "|" + market
}

func defaultTier(d contracts.ValuationSubjectiveDefault) string {
	switch {
	case d.IndustryTag != nil && d.Market != nil:
		return "industry_market"
	case d.IndustryTag != nil:
		return "industry"
	case d.Market != nil:
		return "market"
	default:
		return "global"
	}
}
