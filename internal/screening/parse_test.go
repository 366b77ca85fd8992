package screening

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscope/screener-cli/internal/model"
)

const validDecisionJSON = `{
	"decision": "INCLUDE",
	"confidence": 92,
	"summary": "RCT in the target population",
	"reasoning": {
		"population": {"pass": true, "reason": "adults with T2DM"},
		"intervention": {"pass": true, "reason": "SGLT2 inhibitor arm"},
		"comparator": {"pass": true, "reason": "placebo"},
		"outcome": {"pass": true, "reason": "HbA1c at 24 weeks"},
		"study_design": {"pass": true, "reason": "randomized controlled trial"},
		"exclusion": {"pass": false, "reason": "no exclusion criterion fires"}
	}
}`

func TestParseDecision_Valid(t *testing.T) {
	d, err := parseDecision(validDecisionJSON)
	require.NoError(t, err)

	assert.Equal(t, model.DecisionInclude, d.Decision)
	assert.Equal(t, 92, d.Confidence)
	assert.Equal(t, "RCT in the target population", d.Summary)
	assert.True(t, d.Reasoning.Population.Pass)
	assert.False(t, d.Reasoning.Exclusion.Pass)
	assert.Equal(t, "placebo", d.Reasoning.Comparator.Reason)
}

func TestParseDecision_MarkdownFences(t *testing.T) {
	fenced := "```json\n" + validDecisionJSON + "\n```"
	d, err := parseDecision(fenced)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionInclude, d.Decision)
}

func TestParseDecision_LowercaseVerdictNormalized(t *testing.T) {
	text := `{"decision": "unclear", "confidence": 90, "summary": "s",
		"reasoning": {
			"population": {"pass": false}, "intervention": {"pass": false},
			"comparator": {"pass": false}, "outcome": {"pass": false},
			"study_design": {"pass": false}, "exclusion": {"pass": false}
		}}`

	d, err := parseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionUnclear, d.Decision)
}

func TestParseDecision_UnknownVerdict(t *testing.T) {
	text := `{"decision": "MAYBE", "confidence": 90, "reasoning": {}}`
	_, err := parseDecision(text)
	assert.ErrorContains(t, err, "invalid decision")
}

func TestParseDecision_MissingReasoningEntry(t *testing.T) {
	// comparator is absent entirely; that is a schema violation, not an
	// all-false default.
	text := `{"decision": "EXCLUDE", "confidence": 95, "summary": "s",
		"reasoning": {
			"population": {"pass": true}, "intervention": {"pass": true},
			"outcome": {"pass": true},
			"study_design": {"pass": true}, "exclusion": {"pass": false}
		}}`

	_, err := parseDecision(text)
	assert.ErrorContains(t, err, "comparator")
}

func TestParseDecision_ConfidenceClamped(t *testing.T) {
	text := `{"decision": "INCLUDE", "confidence": 140, "summary": "s",
		"reasoning": {
			"population": {"pass": true}, "intervention": {"pass": true},
			"comparator": {"pass": true}, "outcome": {"pass": true},
			"study_design": {"pass": true}, "exclusion": {"pass": false}
		}}`

	d, err := parseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, 100, d.Confidence)
}

func TestParseDecision_NotJSON(t *testing.T) {
	_, err := parseDecision("I am sorry, I cannot classify this document.")
	assert.Error(t, err)
}

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced plain", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go:\n{\"a\":1}\nHope that helps.", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanJSON(tc.in))
		})
	}
}
