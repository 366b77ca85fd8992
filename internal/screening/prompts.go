package screening

import (
	"fmt"
	"strings"

	"github.com/trialscope/screener-cli/internal/model"
)

const screenPromptHeader = `You are an expert Cochrane systematic reviewer. Screen the study below against these EXACT protocol criteria:

1. POPULATION: %s
2. INTERVENTION: %s
3. COMPARATOR: %s
4. OUTCOME: %s
5. STUDY DESIGN: %s
6. EXCLUSION CRITERIA: %s
%s
%s

For each of the six criteria record pass (true/false) and a short reason. For the exclusion criteria, pass=true means the study VIOLATES an exclusion rule.

Respond with a valid JSON object and nothing else:
{"decision": "INCLUDE"|"EXCLUDE"|"UNCLEAR", "confidence": <0-100>, "summary": "<one sentence>", "reasoning": {"population": {"pass": <bool>, "reason": "<short>"}, "intervention": {...}, "comparator": {...}, "outcome": {...}, "study_design": {...}, "exclusion": {...}}}`

const metaAnalysisNote = "NOTE: Meta-analyses and systematic reviews are eligible study designs for this protocol."

// buildScreenSystemPrompt renders the stage-specific screening prompt.
// Criteria text is embedded verbatim; unset criteria become "not
// restricted" so the model does not invent constraints.
func buildScreenSystemPrompt(criteria model.Criteria, rules string) string {
	note := ""
	if criteria.AllowMetaAnalysis {
		note = metaAnalysisNote
	}
	return fmt.Sprintf(screenPromptHeader,
		orUnrestricted(criteria.Population),
		orUnrestricted(criteria.Intervention),
		orUnrestricted(criteria.Comparator),
		orUnrestricted(criteria.Outcome),
		orUnrestricted(criteria.StudyDesign),
		orUnrestricted(criteria.Exclusion),
		note,
		rules,
	)
}

func orUnrestricted(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(not restricted)"
	}
	return s
}

const extractCriteriaPrompt = `You extract PICO+E screening criteria from systematic-review protocol text. Read the protocol and return the criteria verbatim where possible, condensed where necessary.

Respond with a valid JSON object and nothing else:
{"population": "...", "intervention": "...", "comparator": "...", "outcome": "...", "study_design": "...", "exclusion": "...", "allow_meta_analysis": <bool>}

Leave a field empty ("") if the protocol does not define it.`
