// Package batch fans one screening run out over many documents.
// Individual failures are outcomes, not errors: a 200-document run in
// which three documents fail produces 197 saved records and three
// failed outcomes, never an aborted run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	"github.com/trialscope/screener-cli/internal/config"
	"github.com/trialscope/screener-cli/internal/model"
	"github.com/trialscope/screener-cli/internal/resilience"
	"github.com/trialscope/screener-cli/internal/screening"
	"github.com/trialscope/screener-cli/internal/store"
	"github.com/trialscope/screener-cli/pkg/anthropic"
)

// DocumentItem is one document queued for screening.
type DocumentItem struct {
	Title  string
	Text   string
	Source string
}

// OutcomeKind classifies what happened to one item.
type OutcomeKind string

const (
	OutcomeSaved     OutcomeKind = "saved"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the per-item result of a run.
type Outcome struct {
	Title    string
	Kind     OutcomeKind
	RecordID int64
	Decision model.Decision
	Err      error
}

// Orchestrator screens batches of documents against a project protocol.
type Orchestrator struct {
	screener *screening.Screener
	client   anthropic.Client
	store    store.Store
	anth     config.AnthropicConfig
	cfg      config.BatchConfig
}

// NewOrchestrator wires a batch orchestrator.
func NewOrchestrator(screener *screening.Screener, client anthropic.Client, st store.Store, anth config.AnthropicConfig, cfg config.BatchConfig) *Orchestrator {
	return &Orchestrator{screener: screener, client: client, store: st, anth: anth, cfg: cfg}
}

// Run screens items at the given stage for the given project. It
// returns one Outcome per input item, in input order. The run never
// aborts on a sibling's failure; cancellation stops new dispatches but
// completed outcomes are kept.
func (o *Orchestrator) Run(ctx context.Context, projectID int64, stage model.Stage, items []DocumentItem) ([]Outcome, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Criteria.IsEmpty() {
		return nil, eris.Errorf("batch: project %d has no screening criteria", projectID)
	}

	runID := uuid.NewString()[:8]
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.Int64("project_id", projectID),
		zap.String("stage", string(stage)),
	)
	log.Info("batch run starting", zap.Int("items", len(items)))

	outcomes := make([]Outcome, len(items))
	pending := o.markInputDuplicates(items, outcomes)

	if o.useBatchAPI(stage, len(pending)) {
		err = o.runViaBatchAPI(ctx, log, projectID, stage, project.Criteria, items, pending, outcomes)
	} else {
		err = o.runDirect(ctx, log, projectID, stage, project.Criteria, items, pending, outcomes)
	}

	saved, dup, failed := tally(outcomes)
	log.Info("batch run finished",
		zap.Int("saved", saved),
		zap.Int("duplicates", dup),
		zap.Int("failed", failed),
	)
	return outcomes, err
}

// markInputDuplicates applies the advisory in-memory title guard and
// returns the indexes still pending. The guard saves backend spend on
// obvious repeats within one input file; the storage UNIQUE index
// remains the authoritative check.
func (o *Orchestrator) markInputDuplicates(items []DocumentItem, outcomes []Outcome) []int {
	folder := cases.Fold()
	seen := make(map[string]bool, len(items))

	pending := make([]int, 0, len(items))
	for i, item := range items {
		outcomes[i].Title = item.Title
		key := folder.String(strings.TrimSpace(item.Title))
		if key == "" {
			outcomes[i].Kind = OutcomeFailed
			outcomes[i].Err = eris.New("batch: item has no title")
			continue
		}
		if seen[key] {
			outcomes[i].Kind = OutcomeDuplicate
			continue
		}
		seen[key] = true
		pending = append(pending, i)
	}
	return pending
}

func (o *Orchestrator) useBatchAPI(stage model.Stage, pending int) bool {
	if o.anth.NoBatch || stage != model.StageLevel1 {
		return false
	}
	threshold := o.anth.SmallBatchThreshold
	if threshold <= 0 {
		threshold = 8
	}
	return pending > threshold
}

// runDirect screens pending items concurrently with one API call each.
func (o *Orchestrator) runDirect(ctx context.Context, log *zap.Logger, projectID int64, stage model.Stage, criteria model.Criteria, items []DocumentItem, pending []int, outcomes []Outcome) error {
	limit := o.cfg.Level1Concurrency
	if stage == model.StageLevel2 {
		limit = o.cfg.Level2Concurrency
	}
	if limit <= 0 {
		limit = 1
	}

	var limiter *rate.Limiter
	if stage == model.StageLevel2 && o.cfg.Level2RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.cfg.Level2RatePerMin/60.0), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("batch_classify")

	for n, idx := range pending {
		if gctx.Err() != nil {
			for _, rest := range pending[n:] {
				outcomes[rest].Kind = OutcomeFailed
				outcomes[rest].Err = eris.Wrap(gctx.Err(), "batch: canceled before dispatch")
			}
			break
		}

		item := items[idx]
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					outcomes[idx] = failedOutcome(item.Title, err)
					return nil
				}
			}

			decision, err := resilience.DoVal(gctx, retryCfg, func(ctx context.Context) (model.ScreeningDecision, error) {
				return o.screener.Classify(ctx, item.Text, criteria, stage)
			})
			if err != nil {
				log.Error("item classification failed",
					zap.String("title", item.Title),
					zap.Error(err),
				)
				outcomes[idx] = failedOutcome(item.Title, err)
				return nil
			}

			outcomes[idx] = o.save(gctx, projectID, stage, item, decision)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch: direct run")
	}
	return nil
}

// runViaBatchAPI submits pending items through the Message Batches API.
// The first pending item goes direct as a primer so the shared cached
// system prompt is warm before the fan-out.
func (o *Orchestrator) runViaBatchAPI(ctx context.Context, log *zap.Logger, projectID int64, stage model.Stage, criteria model.Criteria, items []DocumentItem, pending []int, outcomes []Outcome) error {
	primer := pending[0]
	rest := pending[1:]

	decision, err := o.screener.Classify(ctx, items[primer].Text, criteria, stage)
	if err != nil {
		outcomes[primer] = failedOutcome(items[primer].Title, err)
	} else {
		outcomes[primer] = o.save(ctx, projectID, stage, items[primer], decision)
	}

	requests := make([]anthropic.BatchRequestItem, 0, len(rest))
	for _, idx := range rest {
		req, err := o.screener.BuildRequest(items[idx].Text, criteria, stage)
		if err != nil {
			outcomes[idx] = failedOutcome(items[idx].Title, err)
			continue
		}
		requests = append(requests, anthropic.BatchRequestItem{
			CustomID: customID(idx),
			Params:   req,
		})
	}
	if len(requests) == 0 {
		return nil
	}

	batch, err := o.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: requests})
	if err != nil {
		return o.failPending(rest, outcomes, eris.Wrap(err, "batch: create message batch"))
	}
	log.Info("message batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("requests", len(requests)),
	)

	if _, err := anthropic.PollBatch(ctx, o.client, batch.ID); err != nil {
		return o.failPending(rest, outcomes, err)
	}

	iter, err := o.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return o.failPending(rest, outcomes, eris.Wrap(err, "batch: fetch batch results"))
	}
	results, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return o.failPending(rest, outcomes, err)
	}

	for _, idx := range rest {
		if outcomes[idx].Kind != "" {
			continue
		}
		msg, ok := results.Succeeded[customID(idx)]
		if !ok {
			outcomes[idx] = failedOutcome(items[idx].Title, eris.New("batch: item errored in message batch"))
			continue
		}

		decision, err := o.screener.Decode(msg.Text())
		if err != nil {
			outcomes[idx] = failedOutcome(items[idx].Title, err)
			continue
		}
		outcomes[idx] = o.save(ctx, projectID, stage, items[idx], decision)
	}
	return nil
}

// save persists one decision and maps the store's duplicate signal to
// a duplicate outcome.
func (o *Orchestrator) save(ctx context.Context, projectID int64, stage model.Stage, item DocumentItem, decision model.ScreeningDecision) Outcome {
	rec := model.AuditRecord{
		Title:      strings.TrimSpace(item.Title),
		Text:       item.Text,
		Decision:   decision.Decision,
		Summary:    decision.Summary,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Source:     item.Source,
	}

	id, err := o.store.SaveResult(ctx, projectID, stage, rec)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTitle) {
			return Outcome{Title: item.Title, Kind: OutcomeDuplicate, Decision: decision.Decision}
		}
		return failedOutcome(item.Title, err)
	}
	return Outcome{Title: item.Title, Kind: OutcomeSaved, RecordID: id, Decision: decision.Decision}
}

// failPending marks every still-unresolved index failed with err and
// returns err. Used when the whole batch submission fails, which is a
// run-level error rather than a sibling failure.
func (o *Orchestrator) failPending(pending []int, outcomes []Outcome, err error) error {
	for _, idx := range pending {
		if outcomes[idx].Kind == "" {
			outcomes[idx].Kind = OutcomeFailed
			outcomes[idx].Err = err
		}
	}
	return err
}

func failedOutcome(title string, err error) Outcome {
	return Outcome{Title: title, Kind: OutcomeFailed, Err: err}
}

func customID(idx int) string {
	return fmt.Sprintf("doc_%d", idx)
}

func tally(outcomes []Outcome) (saved, dup, failed int) {
	for _, out := range outcomes {
		switch out.Kind {
		case OutcomeSaved:
			saved++
		case OutcomeDuplicate:
			dup++
		case OutcomeFailed:
			failed++
		}
	}
	return
}
