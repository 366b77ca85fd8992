package screening

import "github.com/trialscope/screener-cli/internal/model"

// LowConfidenceMarker prefixes the summary of a gated decision so a
// forced UNCLEAR is visibly distinguishable from a spontaneous one.
const LowConfidenceMarker = "FLAGGED FOR REVIEW (low confidence): "

// DefaultConfidenceFloor is the gate threshold used when configuration
// does not override it.
const DefaultConfidenceFloor = 85

// ApplyConfidenceGate is the deterministic safety net applied once,
// immediately after the backend answer is parsed: any decision below
// the floor is forced to UNCLEAR and its summary annotated. The gate
// is independent of model behavior and reversible only by human
// override.
func ApplyConfidenceGate(d model.ScreeningDecision, floor int) model.ScreeningDecision {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	if d.Confidence >= floor {
		return d
	}
	d.Decision = model.DecisionUnclear
	d.Summary = LowConfidenceMarker + d.Summary
	return d
}
