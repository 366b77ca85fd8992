package mining

import (
	"strings"

	"github.com/trialscope/screener-cli/internal/model"
)

// reference is one Pass-B bibliography entry before merging.
type reference struct {
	Title      string `json:"title"`
	AuthorYear string `json:"author_year"`
	Context    string `json:"context"`
}

// mergeCandidates joins the two passes with deterministic local logic:
// an entry whose author/year contains any included-study key
// (case-insensitive substring) is relevant with full confidence;
// everything else is an ordinary reference-list entry. Substring
// matching can false-positive on common surnames — accepted, since
// this is recall-favoring triage for human review, not a final call.
func mergeCandidates(includedKeys []string, refs []reference) []model.CitationCandidate {
	folded := make([]string, len(includedKeys))
	for i, k := range includedKeys {
		folded[i] = strings.ToLower(k)
	}

	candidates := make([]model.CitationCandidate, 0, len(refs))
	for _, ref := range refs {
		candidate := model.CitationCandidate{
			Title:      ref.Title,
			AuthorYear: ref.AuthorYear,
			Context:    model.ContextReferenceList,
			IsRelevant: false,
			Confidence: 0,
		}

		authorYear := strings.ToLower(ref.AuthorYear)
		for i, key := range folded {
			if key != "" && strings.Contains(authorYear, key) {
				candidate.IsRelevant = true
				candidate.Confidence = 100
				candidate.Context = model.ContextIncludedStudies
				candidate.Reason = "matched included study " + includedKeys[i]
				break
			}
		}

		candidates = append(candidates, candidate)
	}
	return candidates
}
