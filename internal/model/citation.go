package model

// CitationCandidate is one bibliography entry surfaced by the citation
// miner. Candidates are derived data: they only become audit records
// when a human selects them for import.
type CitationCandidate struct {
	Title      string `json:"title"`
	AuthorYear string `json:"author_year"`
	Context    string `json:"context"` // provenance snippet, e.g. "Included Studies Table"
	IsRelevant bool   `json:"is_relevant"`
	Confidence int    `json:"confidence"` // 0-100
	Reason     string `json:"reason,omitempty"`
}

// Citation contexts assigned by the deterministic merge.
const (
	ContextIncludedStudies = "Included Studies Table"
	ContextReferenceList   = "Reference List"
)
