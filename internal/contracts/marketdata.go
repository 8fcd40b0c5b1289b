package contracts

import "time"

// SnapshotQuality is the freshness tag assigned by the external refresh
// process. The engine only consumes it.
type SnapshotQuality string

const (
	QualityFresh    SnapshotQuality = "fresh"
	QualityStale    SnapshotQuality = "stale"
	QualityFallback SnapshotQuality = "fallback"
	QualityMissing  SnapshotQuality = "missing"
)

// IsDegraded reports whether the quality is anything below fresh
func (q SnapshotQuality) IsDegraded() bool {
	return q != QualityFresh
}

// ValuationObjectiveMetricSnapshot is a captured market-derived value
// for one (symbol, method, metric, date)
type ValuationObjectiveMetricSnapshot struct {
	Symbol    string          `json:"symbol"`
	MethodKey string          `json:"method_key"`
	MetricKey string          `json:"metric_key"`
	AsOfDate  time.Time       `json:"as_of_date"`
	Value     float64         `json:"value"`
	Quality   SnapshotQuality `json:"quality"`
	Source    string          `json:"source"`
}

// ValuationSubjectiveDefault is a tiered default for a subjective input.
// Specificity: industry+market > industry > market > global.
type ValuationSubjectiveDefault struct {
	MethodKey   string  `json:"method_key"`
	InputKey    string  `json:"input_key"`
	Market      *string `json:"market,omitempty"`
	IndustryTag *string `json:"industry_tag,omitempty"`
	Value       float64 `json:"value"`
}

// Specificity ranks a default for cascade ordering; higher wins
func (d ValuationSubjectiveDefault) Specificity() int {
	score := 0
	if d.IndustryTag != nil {
		score += 2
	}
	if d.Market != nil {
		score++
	}
	return score
}

// AppliesTo reports whether the default's scope matches an instrument
func (d ValuationSubjectiveDefault) AppliesTo(meta *InstrumentMeta) bool {
	if d.IndustryTag != nil && (meta == nil || meta.IndustryTag != *d.IndustryTag) {
		return false
	}
	if d.Market != nil && (meta == nil || meta.Market != *d.Market) {
		return false
	}
	return true
}

// ValuationSubjectiveOverride is a user-entered per-symbol value; the
// highest-priority input source. Unique (symbol, method_key, input_key).
type ValuationSubjectiveOverride struct {
	Symbol    string    `json:"symbol"`
	MethodKey string    `json:"method_key"`
	InputKey  string    `json:"input_key"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
