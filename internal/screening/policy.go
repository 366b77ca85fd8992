package screening

import (
	"github.com/trialscope/screener-cli/internal/config"
	"github.com/trialscope/screener-cli/internal/model"
)

// stagePolicy captures the per-stage cost/strictness trade-off: which
// model tier answers, how much document text it sees, and which
// decision rules the system prompt enforces.
type stagePolicy struct {
	model     string
	maxChars  int
	maxTokens int64
	rules     string
}

const level1Rules = `STAGE: Title/abstract triage (Level 1).
RULES:
- Sensitivity over 99%: if information is vague, missing, or you are unsure, select "UNCLEAR".
- Select "INCLUDE" only if all criteria are met or strongly implied.
- Select "EXCLUDE" only on a clear, explicit violation of a criterion.`

const level2Rules = `STAGE: Full-text adjudication (Level 2).
RULES:
- Verify each criterion against the full text; do not give the benefit of the doubt.
- If required evidence is absent from the text, select "UNCLEAR" or "EXCLUDE", never "INCLUDE".
- Any violation of the exclusion criteria means "EXCLUDE".`

// policyFor resolves the stage policy from configuration. Character
// budgets are a deliberate cost and latency control, not a correctness
// guarantee: head truncation can produce false UNCLEAR/EXCLUDE on
// documents whose evidence sits past the budget.
func policyFor(stage model.Stage, anth config.AnthropicConfig, scr config.ScreeningConfig) stagePolicy {
	if stage == model.StageLevel2 {
		return stagePolicy{
			model:     anth.SonnetModel,
			maxChars:  scr.Level2MaxChars,
			maxTokens: 2048,
			rules:     level2Rules,
		}
	}
	return stagePolicy{
		model:     anth.HaikuModel,
		maxChars:  scr.Level1MaxChars,
		maxTokens: 1024,
		rules:     level1Rules,
	}
}

// headTruncate keeps the earliest max bytes of text. Returns the kept
// text and whether anything was dropped.
func headTruncate(text string, max int) (string, bool) {
	if max <= 0 || len(text) <= max {
		return text, false
	}
	return text[:max], true
}
