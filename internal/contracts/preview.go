package contracts

import "time"

// ConfidenceTier is the coarse reliability grade of a preview
type ConfidenceTier string

const (
	ConfidenceHigh          ConfidenceTier = "high"
	ConfidenceMedium        ConfidenceTier = "medium"
	ConfidenceLow           ConfidenceTier = "low"
	ConfidenceNotApplicable ConfidenceTier = "not_applicable"
)

// ValuationInputBreakdownItem is one resolved input with its provenance
type ValuationInputBreakdownItem struct {
	Key     string          `json:"key"`
	Kind    InputKind       `json:"kind"`
	Value   *float64        `json:"value,omitempty"`
	Quality SnapshotQuality `json:"quality"`
	Source  string          `json:"source"`
}

// ValuationAppliedEffect records one channel application for the audit
// trail, in application order
type ValuationAppliedEffect struct {
	InsightID    string         `json:"insight_id"`
	InsightTitle string         `json:"insight_title"`
	ChannelID    string         `json:"channel_id"`
	MetricKey    string         `json:"metric_key"`
	Stage        MetricLayer    `json:"stage"`
	Operator     EffectOperator `json:"operator"`
	Priority     int            `json:"priority"`
	Value        float64        `json:"value"`
	BeforeValue  *float64       `json:"before_value,omitempty"`
	AfterValue   *float64       `json:"after_value,omitempty"`
	ScopeLabels  []string       `json:"scope_labels,omitempty"`
}

// ValuationAdjustmentPreview is the full result of one valuation:
// base vs adjusted metrics, the audit trail of applied effects, the
// input breakdown, and the confidence assessment.
// ⭐ SSOT: this is the single host-facing valuation result shape
type ValuationAdjustmentPreview struct {
	Symbol     string `json:"symbol"`
	MethodKey  string `json:"method_key,omitempty"`
	MethodName string `json:"method_name,omitempty"`
	VersionID  string `json:"version_id,omitempty"`
	Version    int    `json:"version,omitempty"`
	OutputKey  string `json:"output_key,omitempty"`

	AsOfDate time.Time `json:"as_of_date"`

	BaseMetrics     map[string]*float64 `json:"base_metrics,omitempty"`
	AdjustedMetrics map[string]*float64 `json:"adjusted_metrics,omitempty"`
	BaseValue       *float64            `json:"base_value,omitempty"`
	AdjustedValue   *float64            `json:"adjusted_value,omitempty"`

	AppliedEffects []ValuationAppliedEffect      `json:"applied_effects,omitempty"`
	Inputs         []ValuationInputBreakdownItem `json:"inputs,omitempty"`

	Confidence         ConfidenceTier `json:"confidence"`
	DegradationReasons []string       `json:"degradation_reasons,omitempty"`

	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// EffectCount returns the number of applied effects
func (p *ValuationAdjustmentPreview) EffectCount() int {
	return len(p.AppliedEffects)
}

// Adjustment returns adjusted minus base value, or nil when either side
// is missing
func (p *ValuationAdjustmentPreview) Adjustment() *float64 {
	if p.BaseValue == nil || p.AdjustedValue == nil {
		return nil
	}
	d := *p.AdjustedValue - *p.BaseValue
	return &d
}
