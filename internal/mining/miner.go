// Package mining extracts and relevance-tags the bibliography of a
// systematic review so its cited studies can be screened as candidates.
package mining

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trialscope/screener-cli/internal/config"
	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/internal/screening"
	"github.com/trialscope/screener-cli/pkg/anthropic"
)

// Two passes over the same review text, merged locally:
//
// Pass A (the "researcher") answers the precision question — which
// author/year keys name the review's OWN included primary studies.
// Pass B (the "clerk") answers the recall question — every entry the
// bibliography lists, no judgment. A single pass conflates the two and
// inherits the worse false-positive cost of each; the deterministic
// merge keeps the relevance flag out of the model's hands entirely.

const researcherPrompt = `You are a systematic-review methodologist. Read the review below and identify the author/year keys of the studies the review itself reports as its INCLUDED primary studies (typically listed in an included-studies table or characteristics-of-included-studies section).

Only list studies the review explicitly includes. Do not list background citations, excluded studies, or methods references. Precision matters more than completeness.

Respond with a valid JSON object and nothing else:
{"included_study_keys": ["<Author Year>", ...]}

If the review names no included studies, return an empty list.`

const clerkPrompt = `You are a bibliographic clerk. Enumerate EVERY entry in the reference list / bibliography of the document below. Do not judge relevance; completeness matters more than precision. Record each entry's title, its author/year key, and a short snippet of the surrounding source text.

Respond with a valid JSON object and nothing else:
{"references": [{"title": "<title>", "author_year": "<Author Year>", "context": "<snippet>"}, ...]}`

// Miner mines review bibliographies through the reasoning backend.
type Miner struct {
	client anthropic.Client
	anth   config.AnthropicConfig
	cfg    config.MiningConfig
}

// NewMiner creates a citation miner over the given backend client.
func NewMiner(client anthropic.Client, anth config.AnthropicConfig, cfg config.MiningConfig) *Miner {
	return &Miner{client: client, anth: anth, cfg: cfg}
}

// Mine runs both passes against the full review text and merges them.
// The input must NOT have its bibliography truncated away — the
// bibliography is the payload here, unlike on the screening path.
func (m *Miner) Mine(ctx context.Context, reviewText string, criteria model.Criteria) ([]model.CitationCandidate, error) {
	if strings.TrimSpace(reviewText) == "" {
		return nil, screening.ErrEmptyText
	}

	keys, err := m.findIncludedKeys(ctx, reviewText)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		// Valid degenerate case: every entry will merge as irrelevant.
		zap.L().Info("mining: review names no included studies")
	}

	refs, err := m.enumerateReferences(ctx, reviewText)
	if err != nil {
		return nil, err
	}

	candidates := mergeCandidates(keys, refs)
	zap.L().Info("mining: merged candidates",
		zap.Int("included_keys", len(keys)),
		zap.Int("references", len(refs)),
		zap.Int("relevant", countRelevant(candidates)),
	)
	return candidates, nil
}

// findIncludedKeys is Pass A: high-precision included-study keys.
func (m *Miner) findIncludedKeys(ctx context.Context, reviewText string) ([]string, error) {
	raw, err := m.call(ctx, researcherPrompt, reviewText, "mine_researcher")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		IncludedStudyKeys []string `json:"included_study_keys"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &screening.BackendError{Err: eris.Wrap(err, "mining: unmarshal included keys")}
	}

	keys := make([]string, 0, len(parsed.IncludedStudyKeys))
	for _, k := range parsed.IncludedStudyKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// enumerateReferences is Pass B: lossy-tolerant exhaustive enumeration.
func (m *Miner) enumerateReferences(ctx context.Context, reviewText string) ([]reference, error) {
	raw, err := m.call(ctx, clerkPrompt, reviewText, "mine_clerk")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		References []reference `json:"references"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &screening.BackendError{Err: eris.Wrap(err, "mining: unmarshal references")}
	}

	refs := parsed.References[:0]
	for _, r := range parsed.References {
		r.Title = strings.TrimSpace(r.Title)
		r.AuthorYear = strings.TrimSpace(r.AuthorYear)
		if r.Title == "" && r.AuthorYear == "" {
			continue
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func (m *Miner) call(ctx context.Context, system, text, phase string) (string, error) {
	maxTokens := m.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	temp := 0.0
	resp, err := m.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       m.anth.SonnetModel,
		MaxTokens:   maxTokens,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: system}},
		Messages: []anthropic.Message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", &screening.BackendError{Err: err}
	}
	resp.Usage.LogCost(m.anth.SonnetModel, phase)

	return cleanJSON(resp.Text()), nil
}

func countRelevant(candidates []model.CitationCandidate) int {
	n := 0
	for _, c := range candidates {
		if c.IsRelevant {
			n++
		}
	}
	return n
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
