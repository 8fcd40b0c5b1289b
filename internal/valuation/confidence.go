package valuation

import (
	"fmt"

	"github.com/vantagefolio/valora/internal/contracts"
)

// AssessConfidence grades a preview from its resolved inputs. The
// objective mix dominates: any missing objective input, a missing
// required input, or half or more of the objective inputs degraded
// drops the grade to low; any other degraded or missing input drops it
// to medium. Reasons follow the input breakdown order so the list is
// stable across runs.
func AssessConfidence(
	version *contracts.ValuationMethodVersion,
	inputs []contracts.ValuationInputBreakdownItem,
) (contracts.ConfidenceTier, []string) {
	required := make(map[string]bool, len(version.MetricSchema.RequiredInputs))
	for _, key := range version.MetricSchema.RequiredInputs {
		required[key] = true
	}

	var reasons []string
	var objTotal, objDegraded int
	var objMissing, requiredMissing, anyDegraded, anyMissing bool

	for _, item := range inputs {
		if item.Kind == contracts.InputObjective {
			objTotal++
		}
		switch item.Quality {
		case contracts.QualityMissing:
			reasons = append(reasons, fmt.Sprintf("input %s is missing", item.Key))
			anyMissing = true
			if item.Kind == contracts.InputObjective {
				objMissing = true
			}
			if required[item.Key] {
				requiredMissing = true
			}
		case contracts.QualityStale:
			reasons = append(reasons, fmt.Sprintf("input %s is stale", item.Key))
			anyDegraded = true
			if item.Kind == contracts.InputObjective {
				objDegraded++
			}
		case contracts.QualityFallback:
			reasons = append(reasons, fmt.Sprintf("input %s uses a fallback value (%s)", item.Key, item.Source))
			anyDegraded = true
			if item.Kind == contracts.InputObjective {
				objDegraded++
			}
		}
	}

	switch {
	case objMissing, requiredMissing,
		objDegraded > 0 && objDegraded*2 >= objTotal:
		return contracts.ConfidenceLow, reasons
	case anyDegraded, anyMissing:
		return contracts.ConfidenceMedium, reasons
	default:
		return contracts.ConfidenceHigh, reasons
	}
}
