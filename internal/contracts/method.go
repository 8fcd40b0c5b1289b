package contracts

import "time"

// MethodStatus describes the lifecycle state of a valuation method
type MethodStatus string

const (
	MethodStatusActive   MethodStatus = "active"
	MethodStatusArchived MethodStatus = "archived"
)

// MetricLayer identifies the evaluation stage a metric node belongs to
type MetricLayer string

const (
	LayerTop         MetricLayer = "top"
	LayerFirstOrder  MetricLayer = "first_order"
	LayerSecondOrder MetricLayer = "second_order"
	LayerOutput      MetricLayer = "output"
	LayerRisk        MetricLayer = "risk"
)

// MetricLayerOrder is the fixed evaluation order of layers
var MetricLayerOrder = []MetricLayer{
	LayerTop,
	LayerFirstOrder,
	LayerSecondOrder,
	LayerOutput,
	LayerRisk,
}

// LayerIndex returns the position of a layer in the evaluation order,
// or -1 for an unknown layer.
func LayerIndex(layer MetricLayer) int {
	for i, l := range MetricLayerOrder {
		if l == layer {
			return i
		}
	}
	return -1
}

// MetricUnit describes how a metric value should be displayed
type MetricUnit string

const (
	UnitNumber   MetricUnit = "number"
	UnitPct      MetricUnit = "pct"
	UnitCurrency MetricUnit = "currency"
	UnitScore    MetricUnit = "score"
	UnitUnknown  MetricUnit = "unknown"
)

// InputKind describes the provenance class of a method input
type InputKind string

const (
	InputObjective  InputKind = "objective"
	InputSubjective InputKind = "subjective"
	InputDerived    InputKind = "derived"
)

// DefaultPolicy describes how a subjective input is defaulted when no
// per-symbol override exists
type DefaultPolicy string

const (
	DefaultNone           DefaultPolicy = "none"
	DefaultIndustryMedian DefaultPolicy = "industry_median"
	DefaultMarketMedian   DefaultPolicy = "market_median"
	DefaultGlobalMedian   DefaultPolicy = "global_median"
	DefaultConstant       DefaultPolicy = "constant"
)

// AssetScope filters which instruments a method is offered for.
// Empty sets act as wildcards.
type AssetScope struct {
	Kinds        []string `json:"kinds,omitempty"`
	AssetClasses []string `json:"asset_classes,omitempty"`
	Markets      []string `json:"markets,omitempty"`
	Domains      []string `json:"domains,omitempty"`
}

// Matches reports whether an instrument falls inside the scope
func (s AssetScope) Matches(meta *InstrumentMeta) bool {
	if meta == nil {
		return false
	}
	if !scopeSetMatches(s.Kinds, meta.Kind) {
		return false
	}
	if !scopeSetMatches(s.AssetClasses, meta.AssetClass) {
		return false
	}
	if !scopeSetMatches(s.Markets, meta.Market) {
		return false
	}
	if !scopeSetMatches(s.Domains, meta.Domain) {
		return false
	}
	return true
}

func scopeSetMatches(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// ValuationMethod is a named, versioned computation strategy for
// estimating an instrument's fair value.
// ⭐ SSOT: method identity and lifecycle live here
type ValuationMethod struct {
	MethodKey       string       `json:"method_key"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	IsBuiltin       bool         `json:"is_builtin"`
	Status          MethodStatus `json:"status"`
	AssetScope      AssetScope   `json:"asset_scope"`
	ActiveVersionID *string      `json:"active_version_id,omitempty"` // nil: newest version is active
	CreatedAt       time.Time    `json:"created_at"`
}

// ValuationMetricNode is one computed quantity in the dependency graph
type ValuationMetricNode struct {
	Key       string      `json:"key"`
	Label     string      `json:"label"`
	Layer     MetricLayer `json:"layer"`
	Unit      MetricUnit  `json:"unit"`
	DependsOn []string    `json:"depends_on,omitempty"`
	FormulaID string      `json:"formula_id"`
	Editable  bool        `json:"editable"`
}

// ValuationMethodInputField declares one input of a method version
type ValuationMethodInputField struct {
	Key             string        `json:"key"`
	Label           string        `json:"label"`
	Kind            InputKind     `json:"kind"`
	Unit            MetricUnit    `json:"unit"`
	Editable        bool          `json:"editable"`
	ObjectiveSource *string       `json:"objective_source,omitempty"` // provenance tag, objective inputs only
	DefaultPolicy   DefaultPolicy `json:"default_policy"`
	DefaultValue    *float64      `json:"default_value,omitempty"`
	DisplayOrder    int           `json:"display_order"`
}

// MetricSchema declares required input keys and output keys of a version
type MetricSchema struct {
	RequiredInputs []string `json:"required_inputs,omitempty"`
	Outputs        []string `json:"outputs,omitempty"`
}

// ValuationMethodVersion is an immutable snapshot of a method's graph,
// params and inputs. Versions only ever get appended; behavior changes
// by publishing a new version or moving the active pointer.
type ValuationMethodVersion struct {
	ID            string                      `json:"id"`
	MethodKey     string                      `json:"method_key"`
	Version       int                         `json:"version"`
	EffectiveFrom *time.Time                  `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time                  `json:"effective_to,omitempty"`
	Nodes         []ValuationMetricNode       `json:"nodes"`
	ParamSchema   map[string]float64          `json:"param_schema,omitempty"`
	MetricSchema  MetricSchema                `json:"metric_schema"`
	InputSchema   []ValuationMethodInputField `json:"input_schema"`
	PublishedAt   time.Time                   `json:"published_at"`
}

// Node returns the metric node with the given key
func (v *ValuationMethodVersion) Node(key string) (*ValuationMetricNode, bool) {
	for i := range v.Nodes {
		if v.Nodes[i].Key == key {
			return &v.Nodes[i], true
		}
	}
	return nil, false
}

// InputField returns the input field with the given key
func (v *ValuationMethodVersion) InputField(key string) (*ValuationMethodInputField, bool) {
	for i := range v.InputSchema {
		if v.InputSchema[i].Key == key {
			return &v.InputSchema[i], true
		}
	}
	return nil, false
}

// ValuationMethodDetail bundles a method with all of its versions
// (newest last). Write operations return this so callers can re-render.
type ValuationMethodDetail struct {
	Method   ValuationMethod          `json:"method"`
	Versions []ValuationMethodVersion `json:"versions"`
}

// NewestVersion returns the version with the highest version number
func (d *ValuationMethodDetail) NewestVersion() *ValuationMethodVersion {
	var newest *ValuationMethodVersion
	for i := range d.Versions {
		if newest == nil || d.Versions[i].Version > newest.Version {
			newest = &d.Versions[i]
		}
	}
	return newest
}

// ActiveVersion resolves the effective version: the one the active
// pointer references, or the newest version when the pointer is unset.
func (d *ValuationMethodDetail) ActiveVersion() *ValuationMethodVersion {
	if d.Method.ActiveVersionID != nil {
		for i := range d.Versions {
			if d.Versions[i].ID == *d.Method.ActiveVersionID {
				return &d.Versions[i]
			}
		}
	}
	return d.NewestVersion()
}

// InstrumentMeta is the attribute set of an instrument, supplied by the
// external metadata collaborator. Scope matching runs against it.
type InstrumentMeta struct {
	Symbol          string   `json:"symbol"`
	Kind            string   `json:"kind"`
	AssetClass      string   `json:"asset_class"`
	Market          string   `json:"market"`
	Domain          string   `json:"domain"`
	IndustryTag     string   `json:"industry_tag"`
	Tags            []string `json:"tags,omitempty"`
	WatchlistGroups []string `json:"watchlist_groups,omitempty"`
}

// HasTag checks tag membership
func (m *InstrumentMeta) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// InWatchlist checks watchlist group membership
func (m *InstrumentMeta) InWatchlist(group string) bool {
	for _, g := range m.WatchlistGroups {
		if g == group {
			return true
		}
	}
	return false
}
