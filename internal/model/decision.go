package model

// Decision is the screening verdict for one document.
type Decision string

const (
	DecisionInclude Decision = "INCLUDE"
	DecisionExclude Decision = "EXCLUDE"
	DecisionUnclear Decision = "UNCLEAR"
)

// AllDecisions returns the valid screening verdicts.
func AllDecisions() []Decision {
	return []Decision{DecisionInclude, DecisionExclude, DecisionUnclear}
}

// IsValidDecision reports whether d is one of the three verdicts.
func IsValidDecision(d Decision) bool {
	switch d {
	case DecisionInclude, DecisionExclude, DecisionUnclear:
		return true
	}
	return false
}

// Criterion identifies one of the six protocol checks.
type Criterion string

const (
	CriterionPopulation   Criterion = "population"
	CriterionIntervention Criterion = "intervention"
	CriterionComparator   Criterion = "comparator"
	CriterionOutcome      Criterion = "outcome"
	CriterionStudyDesign  Criterion = "study_design"
	CriterionExclusion    Criterion = "exclusion"
)

// ReasoningEntry is the per-criterion judgment recorded alongside a
// decision. For the exclusion criterion the polarity is inverted:
// Pass==true means the study VIOLATES an exclusion rule.
type ReasoningEntry struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

// Satisfied reports whether the entry counts as "criterion met" when
// rendered. The exclusion check inverts: a study only qualifies when
// its exclusion entry did NOT fire.
func (e ReasoningEntry) Satisfied(criterion Criterion) bool {
	if criterion == CriterionExclusion {
		return !e.Pass
	}
	return e.Pass
}

// ReasoningLog holds the six per-criterion judgments produced
// atomically with every screening decision. Entries are write-once:
// a human override rewrites the decision, never the log.
type ReasoningLog struct {
	Population   ReasoningEntry `json:"population"`
	Intervention ReasoningEntry `json:"intervention"`
	Comparator   ReasoningEntry `json:"comparator"`
	Outcome      ReasoningEntry `json:"outcome"`
	StudyDesign  ReasoningEntry `json:"study_design"`
	Exclusion    ReasoningEntry `json:"exclusion"`
}

// Entry returns the log entry for the given criterion.
func (l ReasoningLog) Entry(c Criterion) ReasoningEntry {
	switch c {
	case CriterionPopulation:
		return l.Population
	case CriterionIntervention:
		return l.Intervention
	case CriterionComparator:
		return l.Comparator
	case CriterionOutcome:
		return l.Outcome
	case CriterionStudyDesign:
		return l.StudyDesign
	case CriterionExclusion:
		return l.Exclusion
	}
	return ReasoningEntry{}
}

// ScreeningDecision is the structured output of one classification
// call, after the confidence gate has been applied.
type ScreeningDecision struct {
	Decision   Decision     `json:"decision"`
	Confidence int          `json:"confidence"` // 0-100
	Summary    string       `json:"summary"`
	Reasoning  ReasoningLog `json:"reasoning"`
}
