package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidDecision(t *testing.T) {
	for _, d := range AllDecisions() {
		assert.True(t, IsValidDecision(d))
	}
	assert.False(t, IsValidDecision("MAYBE"))
	assert.False(t, IsValidDecision("include"))
	assert.False(t, IsValidDecision(""))
}

// The exclusion entry has inverted polarity: Pass means the study
// violates an exclusion rule, so the criterion is NOT satisfied.
func TestReasoningEntry_Satisfied_ExclusionPolarity(t *testing.T) {
	fired := ReasoningEntry{Pass: true, Reason: "study is a case report"}
	clear := ReasoningEntry{Pass: false}

	assert.False(t, fired.Satisfied(CriterionExclusion))
	assert.True(t, clear.Satisfied(CriterionExclusion))

	// Ordinary criteria keep direct polarity.
	assert.True(t, fired.Satisfied(CriterionPopulation))
	assert.False(t, clear.Satisfied(CriterionOutcome))
}

func TestReasoningLog_Entry(t *testing.T) {
	log := ReasoningLog{
		StudyDesign: ReasoningEntry{Pass: true, Reason: "RCT"},
	}

	assert.Equal(t, "RCT", log.Entry(CriterionStudyDesign).Reason)
	assert.Empty(t, log.Entry(CriterionComparator).Reason)
	assert.Equal(t, ReasoningEntry{}, log.Entry(Criterion("bogus")))
}

func TestParseStage(t *testing.T) {
	cases := []struct {
		in   string
		want Stage
		ok   bool
	}{
		{"level_1", StageLevel1, true},
		{"1", StageLevel1, true},
		{"l2", StageLevel2, true},
		{"level_2", StageLevel2, true},
		{"level_3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStage(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCountRecords(t *testing.T) {
	records := []AuditRecord{
		{Decision: DecisionInclude},
		{Decision: DecisionInclude},
		{Decision: DecisionExclude},
		{Decision: DecisionUnclear},
	}

	counts := CountRecords(records)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 2, counts.Include)
	assert.Equal(t, 1, counts.Exclude)
	assert.Equal(t, 1, counts.Unclear)
}
