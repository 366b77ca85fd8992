package model

import "time"

// Stage is one of the two independent screening passes. Each stage
// keeps its own result collection; the same study may appear in both.
type Stage string

const (
	// StageLevel1 is abstract-level triage, biased toward sensitivity.
	StageLevel1 Stage = "level_1"
	// StageLevel2 is full-text adjudication, biased toward specificity.
	StageLevel2 Stage = "level_2"
)

// IsValidStage reports whether s names a known screening stage.
func IsValidStage(s Stage) bool {
	return s == StageLevel1 || s == StageLevel2
}

// ParseStage maps user input ("level_1", "1", "level_2", "2") to a Stage.
func ParseStage(s string) (Stage, bool) {
	switch s {
	case string(StageLevel1), "1", "l1":
		return StageLevel1, true
	case string(StageLevel2), "2", "l2":
		return StageLevel2, true
	}
	return "", false
}

// Provenance tags for audit records.
const (
	SourceSingle      = "Single"
	SourceBatchCSV    = "Batch CSV"
	SourceBatchXLSX   = "Batch XLSX"
	SourceBatchPDF    = "Batch PDF"
	SourceMinedPrefix = "Mined: "
	SourceMined       = "Mined Source"
)

// AuditRecord is the persisted projection of a screening decision.
// Title, Text and the reasoning log are write-once; only Decision and
// OverrideHistory may be rewritten, and only through an explicit
// override.
type AuditRecord struct {
	ID         int64        `json:"id"`
	ProjectID  int64        `json:"project_id"`
	Title      string       `json:"title"`
	Text       string       `json:"text"` // abstract (level_1) or full text (level_2)
	Decision   Decision     `json:"decision"`
	Summary    string       `json:"summary"`
	Confidence int          `json:"confidence"`
	Reasoning  ReasoningLog `json:"reasoning"`
	Source     string       `json:"source"`
	// OverrideHistory is empty until a human overrides the decision.
	// Repeated overrides replace the note; the machine's original
	// confidence, summary and reasoning stay untouched.
	OverrideHistory string    `json:"override_history,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Overridden reports whether a human has corrected this record.
func (r AuditRecord) Overridden() bool {
	return r.OverrideHistory != ""
}

// Project owns a protocol and two independent result collections, one
// per stage.
type Project struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Criteria  Criteria  `json:"criteria"`
	CreatedAt time.Time `json:"created_at"`
}

// StageCounts summarizes decisions in one stage of a project.
type StageCounts struct {
	Total      int `json:"total"`
	Include    int `json:"include"`
	Exclude    int `json:"exclude"`
	Unclear    int `json:"unclear"`
	Overridden int `json:"overridden"`
}

// CountRecords tallies decision outcomes over a record list.
func CountRecords(records []AuditRecord) StageCounts {
	var c StageCounts
	c.Total = len(records)
	for _, r := range records {
		switch r.Decision {
		case DecisionInclude:
			c.Include++
		case DecisionExclude:
			c.Exclude++
		case DecisionUnclear:
			c.Unclear++
		}
		if r.Overridden() {
			c.Overridden++
		}
	}
	return c
}
