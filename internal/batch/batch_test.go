package batch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscope/screener-cli/internal/config"
	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/internal/screening"
	"github.com/trialscope/screener-cli/internal/store"
	"github.com/trialscope/screener-cli/pkg/anthropic"
)

const includeJSON = `{
	"decision": "INCLUDE", "confidence": 95, "summary": "meets criteria",
	"reasoning": {
		"population": {"pass": true}, "intervention": {"pass": true},
		"comparator": {"pass": true}, "outcome": {"pass": true},
		"study_design": {"pass": true}, "exclusion": {"pass": false}
	}}`

// fakeClient answers every classification with includeJSON, except
// documents containing "TRIGGER-FAILURE" which error.
type fakeClient struct {
	mu       sync.Mutex
	messages int
	batches  []anthropic.BatchRequest
	onCall   func(ctx context.Context)
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	f.messages++
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if strings.Contains(req.Messages[0].Content, "TRIGGER-FAILURE") {
		return nil, eris.New("malformed document")
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: includeJSON}},
	}, nil
}

func (f *fakeClient) CreateBatch(_ context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	f.mu.Lock()
	f.batches = append(f.batches, req)
	f.mu.Unlock()
	return &anthropic.BatchResponse{ID: "batch_1", ProcessingStatus: "in_progress"}, nil
}

func (f *fakeClient) GetBatch(_ context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return &anthropic.BatchResponse{ID: batchID, ProcessingStatus: "ended"}, nil
}

func (f *fakeClient) GetBatchResults(_ context.Context, _ string) (anthropic.BatchResultIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []anthropic.BatchResultItem
	for _, req := range f.batches[len(f.batches)-1].Requests {
		item := anthropic.BatchResultItem{CustomID: req.CustomID, Type: "succeeded"}
		if strings.Contains(req.Params.Messages[0].Content, "TRIGGER-FAILURE") {
			item.Type = "errored"
		} else {
			item.Message = &anthropic.MessageResponse{
				Content: []anthropic.ContentBlock{{Type: "text", Text: includeJSON}},
			}
		}
		items = append(items, item)
	}
	return &fakeIterator{items: items}, nil
}

type fakeIterator struct {
	items []anthropic.BatchResultItem
	pos   int
}

func (it *fakeIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *fakeIterator) Item() anthropic.BatchResultItem { return it.items[it.pos-1] }
func (it *fakeIterator) Err() error                      { return nil }
func (it *fakeIterator) Close() error                    { return nil }

func newTestOrchestrator(t *testing.T, client *fakeClient, anth config.AnthropicConfig) (*Orchestrator, store.Store, int64) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	project, err := st.CreateProject(context.Background(), "reviewer", "test review", model.Criteria{
		Population: "adults",
		Exclusion:  "animal studies",
	})
	require.NoError(t, err)

	screener := screening.NewScreener(client, anth, config.ScreeningConfig{
		ConfidenceFloor: 85,
		Level1MaxChars:  12000,
		Level2MaxChars:  60000,
	})

	orch := NewOrchestrator(screener, client, st, anth, config.BatchConfig{
		Level1Concurrency: 2,
		Level2Concurrency: 1,
	})
	return orch, st, project.ID
}

func directConfig() config.AnthropicConfig {
	return config.AnthropicConfig{
		HaikuModel:          "claude-haiku-4-5-20251001",
		SonnetModel:         "claude-sonnet-4-5-20250929",
		NoBatch:             true,
		SmallBatchThreshold: 8,
	}
}

func items(titles ...string) []DocumentItem {
	out := make([]DocumentItem, len(titles))
	for i, title := range titles {
		out[i] = DocumentItem{Title: title, Text: "abstract for " + title, Source: model.SourceBatchCSV}
	}
	return out
}

func TestRun_PartialFailure(t *testing.T) {
	client := &fakeClient{}
	orch, st, projectID := newTestOrchestrator(t, client, directConfig())

	in := items("A", "B", "C", "D", "E")
	in[2].Text = "TRIGGER-FAILURE"

	outcomes, err := orch.Run(context.Background(), projectID, model.StageLevel1, in)
	require.NoError(t, err, "a sibling failure never aborts the run")
	require.Len(t, outcomes, 5)

	saved, _, failed := tally(outcomes)
	assert.Equal(t, 4, saved)
	assert.Equal(t, 1, failed)
	assert.Equal(t, OutcomeFailed, outcomes[2].Kind)
	assert.Error(t, outcomes[2].Err)

	records, err := st.ListResults(context.Background(), projectID, model.StageLevel1)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestRun_InputDuplicatesCaughtBeforeDispatch(t *testing.T) {
	client := &fakeClient{}
	orch, st, projectID := newTestOrchestrator(t, client, directConfig())

	outcomes, err := orch.Run(context.Background(), projectID, model.StageLevel1,
		items("Trial of X", "Trial of Y", "TRIAL OF X"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSaved, outcomes[0].Kind)
	assert.Equal(t, OutcomeSaved, outcomes[1].Kind)
	assert.Equal(t, OutcomeDuplicate, outcomes[2].Kind, "case-folded repeat never reaches the backend")
	assert.Equal(t, 2, client.messages)

	records, err := st.ListResults(context.Background(), projectID, model.StageLevel1)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRun_StoreDuplicateIsOutcomeNotError(t *testing.T) {
	client := &fakeClient{}
	orch, st, projectID := newTestOrchestrator(t, client, directConfig())

	// Screened in an earlier run.
	_, err := st.SaveResult(context.Background(), projectID, model.StageLevel1, model.AuditRecord{
		Title:    "Trial of X",
		Decision: model.DecisionInclude,
	})
	require.NoError(t, err)

	outcomes, err := orch.Run(context.Background(), projectID, model.StageLevel1, items("Trial of X"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcomes[0].Kind)
}

func TestRun_UntitledItemFails(t *testing.T) {
	client := &fakeClient{}
	orch, _, projectID := newTestOrchestrator(t, client, directConfig())

	outcomes, err := orch.Run(context.Background(), projectID, model.StageLevel1,
		[]DocumentItem{{Title: "  ", Text: "orphan abstract"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcomes[0].Kind)
	assert.Zero(t, client.messages)
}

func TestRun_NoCriteria(t *testing.T) {
	client := &fakeClient{}
	orch, st, _ := newTestOrchestrator(t, client, directConfig())

	bare, err := st.CreateProject(context.Background(), "reviewer", "empty", model.Criteria{})
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), bare.ID, model.StageLevel1, items("A"))
	assert.ErrorContains(t, err, "no screening criteria")
}

func TestRun_CancellationKeepsCompletedOutcomes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{}
	var once sync.Once
	client.onCall = func(context.Context) {
		// First classification cancels the run mid-flight.
		once.Do(cancel)
	}

	orch, _, projectID := newTestOrchestrator(t, client, directConfig())
	orch.cfg.Level1Concurrency = 1

	outcomes, err := orch.Run(ctx, projectID, model.StageLevel1, items("A", "B", "C"))
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// With concurrency 1, item B may or may not have been dispatched
	// before the cancellation was observed; item C never is.
	assert.Equal(t, OutcomeFailed, outcomes[1].Kind)
	assert.Equal(t, OutcomeFailed, outcomes[2].Kind)
	assert.ErrorContains(t, outcomes[2].Err, "canceled before dispatch")
	assert.LessOrEqual(t, client.messages, 2, "no fan-out after cancellation")
}

func TestRun_LargeLevel1UsesMessageBatches(t *testing.T) {
	anth := directConfig()
	anth.NoBatch = false

	client := &fakeClient{}
	orch, st, projectID := newTestOrchestrator(t, client, anth)

	titles := make([]string, 12)
	for i := range titles {
		titles[i] = "Trial " + string(rune('A'+i))
	}
	in := items(titles...)
	in[5].Text = "TRIGGER-FAILURE"

	outcomes, err := orch.Run(context.Background(), projectID, model.StageLevel1, in)
	require.NoError(t, err)

	saved, _, failed := tally(outcomes)
	assert.Equal(t, 11, saved)
	assert.Equal(t, 1, failed)

	assert.Equal(t, 1, client.messages, "only the cache primer goes direct")
	require.Len(t, client.batches, 1)
	assert.Len(t, client.batches[0].Requests, 11)

	records, err := st.ListResults(context.Background(), projectID, model.StageLevel1)
	require.NoError(t, err)
	assert.Len(t, records, 11)
}

func TestRun_Level2StaysDirect(t *testing.T) {
	anth := directConfig()
	anth.NoBatch = false

	client := &fakeClient{}
	orch, _, projectID := newTestOrchestrator(t, client, anth)

	titles := make([]string, 10)
	for i := range titles {
		titles[i] = "Full text " + string(rune('A'+i))
	}

	outcomes, err := orch.Run(context.Background(), projectID, model.StageLevel2, items(titles...))
	require.NoError(t, err)

	saved, _, _ := tally(outcomes)
	assert.Equal(t, 10, saved)
	assert.Empty(t, client.batches, "level_2 never goes through the batch API")
}
