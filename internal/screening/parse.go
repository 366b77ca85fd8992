package screening

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/trialscope/screener-cli/internal/model"
)

// rawDecision mirrors the JSON shape the backend is instructed to
// return. Reasoning entries are pointers so a missing criterion is
// distinguishable from an all-false one.
type rawDecision struct {
	Decision   string `json:"decision"`
	Confidence int    `json:"confidence"`
	Summary    string `json:"summary"`
	Reasoning  struct {
		Population   *model.ReasoningEntry `json:"population"`
		Intervention *model.ReasoningEntry `json:"intervention"`
		Comparator   *model.ReasoningEntry `json:"comparator"`
		Outcome      *model.ReasoningEntry `json:"outcome"`
		StudyDesign  *model.ReasoningEntry `json:"study_design"`
		Exclusion    *model.ReasoningEntry `json:"exclusion"`
	} `json:"reasoning"`
}

// parseDecision validates untyped backend output against the decision
// schema. Any shape mismatch is a backend error, never a crash and
// never a silently defaulted decision.
func parseDecision(text string) (model.ScreeningDecision, error) {
	var raw rawDecision
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return model.ScreeningDecision{}, eris.Wrap(err, "screening: unmarshal decision")
	}

	decision := model.Decision(strings.ToUpper(strings.TrimSpace(raw.Decision)))
	if !model.IsValidDecision(decision) {
		return model.ScreeningDecision{}, eris.Errorf("screening: invalid decision %q", raw.Decision)
	}

	entries := map[model.Criterion]*model.ReasoningEntry{
		model.CriterionPopulation:   raw.Reasoning.Population,
		model.CriterionIntervention: raw.Reasoning.Intervention,
		model.CriterionComparator:   raw.Reasoning.Comparator,
		model.CriterionOutcome:      raw.Reasoning.Outcome,
		model.CriterionStudyDesign:  raw.Reasoning.StudyDesign,
		model.CriterionExclusion:    raw.Reasoning.Exclusion,
	}
	for criterion, entry := range entries {
		if entry == nil {
			return model.ScreeningDecision{}, eris.Errorf("screening: reasoning entry %s missing", criterion)
		}
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return model.ScreeningDecision{
		Decision:   decision,
		Confidence: confidence,
		Summary:    strings.TrimSpace(raw.Summary),
		Reasoning: model.ReasoningLog{
			Population:   *raw.Reasoning.Population,
			Intervention: *raw.Reasoning.Intervention,
			Comparator:   *raw.Reasoning.Comparator,
			Outcome:      *raw.Reasoning.Outcome,
			StudyDesign:  *raw.Reasoning.StudyDesign,
			Exclusion:    *raw.Reasoning.Exclusion,
		},
	}, nil
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
