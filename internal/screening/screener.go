// Package screening implements the classifier gateway: it turns
// (document text, protocol criteria, workflow stage) into a structured,
// confidence-gated screening decision.
package screening

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trialscope/screener-cli/internal/config"
	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/pkg/anthropic"
)

// Screener classifies candidate studies against a project protocol.
// It is stateless; one instance serves concurrent callers.
type Screener struct {
	client anthropic.Client
	anth   config.AnthropicConfig
	cfg    config.ScreeningConfig
}

// NewScreener creates a classifier gateway over the given backend client.
func NewScreener(client anthropic.Client, anth config.AnthropicConfig, cfg config.ScreeningConfig) *Screener {
	return &Screener{client: client, anth: anth, cfg: cfg}
}

// ConfidenceFloor returns the configured gate threshold.
func (s *Screener) ConfidenceFloor() int {
	if s.cfg.ConfidenceFloor <= 0 {
		return DefaultConfidenceFloor
	}
	return s.cfg.ConfidenceFloor
}

// BuildRequest constructs the backend request for one document without
// sending it. The batch path uses this to assemble Message Batches; the
// single path goes through Classify.
func (s *Screener) BuildRequest(text string, criteria model.Criteria, stage model.Stage) (anthropic.MessageRequest, error) {
	if strings.TrimSpace(text) == "" {
		return anthropic.MessageRequest{}, ErrEmptyText
	}
	if !model.IsValidStage(stage) {
		return anthropic.MessageRequest{}, eris.Errorf("screening: unknown stage %q", stage)
	}

	policy := policyFor(stage, s.anth, s.cfg)
	kept, truncated := headTruncate(text, policy.maxChars)
	if truncated {
		zap.L().Info("screening: document truncated to stage budget",
			zap.String("stage", string(stage)),
			zap.Int("budget_chars", policy.maxChars),
			zap.Int("original_chars", len(text)),
		)
	}

	temp := 0.0
	return anthropic.MessageRequest{
		Model:       policy.model,
		MaxTokens:   policy.maxTokens,
		Temperature: &temp,
		System:      anthropic.BuildCachedSystemBlocks(buildScreenSystemPrompt(criteria, policy.rules)),
		Messages: []anthropic.Message{
			{Role: "user", Content: kept},
		},
	}, nil
}

// Decode parses and validates raw backend output, then applies the
// confidence gate. Exposed for the batch-results path.
func (s *Screener) Decode(raw string) (model.ScreeningDecision, error) {
	decision, err := parseDecision(raw)
	if err != nil {
		return model.ScreeningDecision{}, &BackendError{Err: err}
	}
	return ApplyConfidenceGate(decision, s.ConfidenceFloor()), nil
}

// Classify screens one document at the given stage. All six reasoning
// entries are produced atomically with the verdict in a single call.
func (s *Screener) Classify(ctx context.Context, text string, criteria model.Criteria, stage model.Stage) (model.ScreeningDecision, error) {
	req, err := s.BuildRequest(text, criteria, stage)
	if err != nil {
		return model.ScreeningDecision{}, err
	}

	resp, err := s.client.CreateMessage(ctx, req)
	if err != nil {
		return model.ScreeningDecision{}, &BackendError{Err: err}
	}
	resp.Usage.LogCost(req.Model, "screen_"+string(stage))

	return s.Decode(resp.Text())
}

// ExtractCriteria pulls PICO+E criteria out of free protocol text.
// Legacy single-letter keys in the response are normalized at this
// boundary; read sites only ever see the canonical schema.
func (s *Screener) ExtractCriteria(ctx context.Context, protocolText string) (model.Criteria, error) {
	if strings.TrimSpace(protocolText) == "" {
		return model.Criteria{}, ErrEmptyText
	}

	kept, _ := headTruncate(protocolText, s.cfg.Level2MaxChars)
	temp := 0.0
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.anth.SonnetModel,
		MaxTokens:   1024,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: extractCriteriaPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: kept},
		},
	})
	if err != nil {
		return model.Criteria{}, &BackendError{Err: err}
	}
	resp.Usage.LogCost(s.anth.SonnetModel, "extract_criteria")

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &raw); err != nil {
		return model.Criteria{}, &BackendError{Err: eris.Wrap(err, "screening: unmarshal criteria")}
	}

	criteria := model.Criteria{
		Population:   stringField(raw, "population"),
		Intervention: stringField(raw, "intervention"),
		Comparator:   stringField(raw, "comparator"),
		Outcome:      stringField(raw, "outcome"),
		StudyDesign:  stringField(raw, "study_design"),
		Exclusion:    stringField(raw, "exclusion"),
	}
	if allow, ok := raw["allow_meta_analysis"].(bool); ok {
		criteria.AllowMetaAnalysis = allow
	}

	aliases := make(map[string]string)
	for _, key := range []string{"P", "I", "C", "O", "S", "E"} {
		if v := stringField(raw, key); v != "" {
			aliases[key] = v
		}
	}
	return model.NormalizeCriteria(criteria, aliases), nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
