package screening

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscope/screener-cli/internal/config"
	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/pkg/anthropic"
)

// fakeClient records requests and replies from a script.
type fakeClient struct {
	requests  []anthropic.MessageRequest
	responses []string
	err       error
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	text := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

func (f *fakeClient) CreateBatch(context.Context, anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	return nil, eris.New("not implemented")
}

func (f *fakeClient) GetBatch(context.Context, string) (*anthropic.BatchResponse, error) {
	return nil, eris.New("not implemented")
}

func (f *fakeClient) GetBatchResults(context.Context, string) (anthropic.BatchResultIterator, error) {
	return nil, eris.New("not implemented")
}

func testConfigs() (config.AnthropicConfig, config.ScreeningConfig) {
	anth := config.AnthropicConfig{
		HaikuModel:  "claude-haiku-4-5-20251001",
		SonnetModel: "claude-sonnet-4-5-20250929",
	}
	scr := config.ScreeningConfig{
		ConfidenceFloor: 85,
		Level1MaxChars:  12000,
		Level2MaxChars:  60000,
	}
	return anth, scr
}

func testCriteria() model.Criteria {
	return model.Criteria{
		Population:   "adults with type 2 diabetes",
		Intervention: "SGLT2 inhibitors",
		Comparator:   "placebo",
		Outcome:      "HbA1c reduction",
		StudyDesign:  "randomized controlled trials",
		Exclusion:    "animal studies; case reports",
	}
}

func TestBuildRequest_StagePolicies(t *testing.T) {
	anth, scr := testConfigs()
	s := NewScreener(&fakeClient{}, anth, scr)

	l1, err := s.BuildRequest("some abstract", testCriteria(), model.StageLevel1)
	require.NoError(t, err)
	assert.Equal(t, anth.HaikuModel, l1.Model)
	assert.Contains(t, l1.System[0].Text, "Sensitivity over 99%")

	l2, err := s.BuildRequest("some full text", testCriteria(), model.StageLevel2)
	require.NoError(t, err)
	assert.Equal(t, anth.SonnetModel, l2.Model)
	assert.Contains(t, l2.System[0].Text, "do not give the benefit of the doubt")

	require.NotNil(t, l1.Temperature)
	assert.Zero(t, *l1.Temperature)
	require.NotNil(t, l1.System[0].CacheControl)
	assert.Equal(t, "1h", l1.System[0].CacheControl.TTL)
}

func TestBuildRequest_EmbedsCriteria(t *testing.T) {
	anth, scr := testConfigs()
	s := NewScreener(&fakeClient{}, anth, scr)

	req, err := s.BuildRequest("text", testCriteria(), model.StageLevel1)
	require.NoError(t, err)

	system := req.System[0].Text
	assert.Contains(t, system, "adults with type 2 diabetes")
	assert.Contains(t, system, "animal studies; case reports")
}

func TestBuildRequest_HeadTruncation(t *testing.T) {
	anth, scr := testConfigs()
	scr.Level1MaxChars = 100
	s := NewScreener(&fakeClient{}, anth, scr)

	long := strings.Repeat("a", 250)
	req, err := s.BuildRequest(long, testCriteria(), model.StageLevel1)
	require.NoError(t, err)
	assert.Len(t, req.Messages[0].Content, 100)
}

func TestBuildRequest_EmptyText(t *testing.T) {
	anth, scr := testConfigs()
	s := NewScreener(&fakeClient{}, anth, scr)

	_, err := s.BuildRequest("   \n\t  ", testCriteria(), model.StageLevel1)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestBuildRequest_InvalidStage(t *testing.T) {
	anth, scr := testConfigs()
	s := NewScreener(&fakeClient{}, anth, scr)

	_, err := s.BuildRequest("text", testCriteria(), model.Stage("level_3"))
	assert.ErrorContains(t, err, "unknown stage")
}

func TestClassify_AppliesGate(t *testing.T) {
	anth, scr := testConfigs()
	client := &fakeClient{responses: []string{`{
		"decision": "INCLUDE", "confidence": 60, "summary": "probably fine",
		"reasoning": {
			"population": {"pass": true}, "intervention": {"pass": true},
			"comparator": {"pass": true}, "outcome": {"pass": true},
			"study_design": {"pass": true}, "exclusion": {"pass": false}
		}}`}}
	s := NewScreener(client, anth, scr)

	d, err := s.Classify(context.Background(), "abstract text", testCriteria(), model.StageLevel1)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionUnclear, d.Decision)
	assert.True(t, strings.HasPrefix(d.Summary, LowConfidenceMarker))
}

func TestClassify_BackendErrorWrapped(t *testing.T) {
	anth, scr := testConfigs()
	client := &fakeClient{err: eris.New("api down")}
	s := NewScreener(client, anth, scr)

	_, err := s.Classify(context.Background(), "text", testCriteria(), model.StageLevel1)
	assert.True(t, IsBackendError(err))
}

func TestClassify_MalformedResponseIsBackendError(t *testing.T) {
	anth, scr := testConfigs()
	client := &fakeClient{responses: []string{"not json at all"}}
	s := NewScreener(client, anth, scr)

	_, err := s.Classify(context.Background(), "text", testCriteria(), model.StageLevel1)
	assert.True(t, IsBackendError(err))
}

func TestExtractCriteria_NormalizesLegacyKeys(t *testing.T) {
	anth, scr := testConfigs()
	client := &fakeClient{responses: []string{`{
		"population": "pregnant women",
		"I": "iron supplementation",
		"outcome": "anemia incidence"
	}`}}
	s := NewScreener(client, anth, scr)

	criteria, err := s.ExtractCriteria(context.Background(), "protocol text")
	require.NoError(t, err)
	assert.Equal(t, "pregnant women", criteria.Population)
	assert.Equal(t, "iron supplementation", criteria.Intervention)
	assert.Equal(t, "anemia incidence", criteria.Outcome)
	assert.Equal(t, anth.SonnetModel, client.requests[0].Model)
}
