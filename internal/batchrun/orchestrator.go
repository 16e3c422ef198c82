// Package batchrun supervises project-wide check runs: it drives the run
// aggregator across every target document as a background job under a
// concurrency ceiling, committing per-document progress immediately so a
// crash never loses completed work.
package batchrun

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/run"
	"github.com/planwise/plancheck/internal/types"
)

// DefaultConcurrency bounds simultaneous in-flight documents, and with them
// simultaneous provider calls and store transactions.
const DefaultConcurrency = 3

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error)
	ListDocuments(ctx context.Context, projectID uuid.UUID) ([]*types.Document, error)
	LatestCompletedParseResult(ctx context.Context, documentID uuid.UUID) (*types.ParseResult, error)
	HasCheckResult(ctx context.Context, documentID, parseResultID uuid.UUID) (bool, error)

	CreateBatchRun(ctx context.Context, r *types.BatchCheckRun) error
	GetBatchRun(ctx context.Context, id uuid.UUID) (*types.BatchCheckRun, error)
	MarkBatchRunProcessing(ctx context.Context, id uuid.UUID, totalDocuments int) error
	IncrementBatchRunCounter(ctx context.Context, id uuid.UUID, counter db.BatchRunCounter) error
	AddBatchRunTotals(ctx context.Context, id uuid.UUID, summary types.Summary, usage types.Usage) error
	FinalizeBatchRun(ctx context.Context, id uuid.UUID, status types.BatchRunStatus, errorMessage string) error
	CancelBatchRun(ctx context.Context, id uuid.UUID) (bool, error)
}

// Runner runs checks for one document. Satisfied by *run.Aggregator.
type Runner interface {
	Run(ctx context.Context, documentID uuid.UUID, opts run.Options) (*types.CheckResult, error)
}

// Options configure one batch job.
type Options struct {
	ProjectID uuid.UUID
	// DocumentIDs restricts the job to these documents; empty means every
	// document in the project.
	DocumentIDs []uuid.UUID
	// ForceRerun re-checks documents that already have a CheckResult.
	ForceRerun bool
	// Concurrency overrides the in-flight document ceiling; 0 uses the
	// default.
	Concurrency int
}

// Orchestrator creates and executes batch check runs.
type Orchestrator struct {
	store  Store
	runner Runner
	queue  *Queue
}

// New creates an Orchestrator executing jobs on the given queue.
func New(store Store, runner Runner, queue *Queue) *Orchestrator {
	return &Orchestrator{store: store, runner: runner, queue: queue}
}

// Start validates the project, records a pending BatchCheckRun, and submits
// the job for background execution. It returns as soon as the record exists;
// callers poll GetBatchRun for progress.
func (o *Orchestrator) Start(ctx context.Context, opts Options) (*types.BatchCheckRun, error) {
	project, err := o.store.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %s not found", opts.ProjectID)
	}

	batchRun := &types.BatchCheckRun{
		ProjectID:  opts.ProjectID,
		Status:     types.BatchPending,
		ForceRerun: opts.ForceRerun,
	}
	if err := o.store.CreateBatchRun(ctx, batchRun); err != nil {
		return nil, err
	}

	runID := batchRun.ID
	o.queue.Submit(func(jobCtx context.Context) {
		o.Execute(jobCtx, runID, opts)
	})
	return batchRun, nil
}

// Cancel requests cancellation of a pending or processing run. Documents
// already in flight complete and persist; not-yet-started documents are
// counted as skipped by the executing job.
func (o *Orchestrator) Cancel(ctx context.Context, runID uuid.UUID) (bool, error) {
	return o.store.CancelBatchRun(ctx, runID)
}

// Execute runs the batch job to completion. Normally invoked via the queue;
// exported so callers can run a job synchronously.
func (o *Orchestrator) Execute(ctx context.Context, runID uuid.UUID, opts Options) {
	err := o.process(ctx, runID, opts)
	if err != nil {
		// An error here means the accounting itself broke, which is a job
		// failure. Per-document failures never reach this path.
		log.Printf("[BATCH] run %s failed: %v", runID, err)
		if finalizeErr := o.store.FinalizeBatchRun(ctx, runID, types.BatchFailed, err.Error()); finalizeErr != nil {
			log.Printf("[BATCH] run %s: failed to record failure: %v", runID, finalizeErr)
		}
	}
}

// outcome is the per-document classification every target document receives
// exactly one of.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeFailed
	outcomeCompleted
)

func (o *Orchestrator) process(ctx context.Context, runID uuid.UUID, opts Options) error {
	documents, err := o.targetDocuments(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to resolve target documents: %w", err)
	}

	if err := o.store.MarkBatchRunProcessing(ctx, runID, len(documents)); err != nil {
		return fmt.Errorf("failed to mark run processing: %w", err)
	}
	log.Printf("[BATCH] run %s: processing %d documents", runID, len(documents))

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var anyFailed atomic.Bool
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, doc := range documents {
		doc := doc
		group.Go(func() error {
			cancelled, err := o.runCancelled(groupCtx, runID)
			if err != nil {
				return err
			}
			if cancelled {
				return o.store.IncrementBatchRunCounter(groupCtx, runID, db.CounterSkipped)
			}

			result := o.processDocument(groupCtx, runID, doc, opts.ForceRerun)
			switch result {
			case outcomeSkipped:
				return o.store.IncrementBatchRunCounter(groupCtx, runID, db.CounterSkipped)
			case outcomeFailed:
				anyFailed.Store(true)
				return o.store.IncrementBatchRunCounter(groupCtx, runID, db.CounterFailed)
			default:
				return o.store.IncrementBatchRunCounter(groupCtx, runID, db.CounterCompleted)
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	status := types.BatchCompleted
	if anyFailed.Load() {
		status = types.BatchCompletedWithErrors
	}
	// FinalizeBatchRun leaves terminal states alone, so a cancelled run
	// stays cancelled.
	if err := o.store.FinalizeBatchRun(ctx, runID, status, ""); err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	log.Printf("[BATCH] run %s: finished with status %s", runID, status)
	return nil
}

// processDocument classifies one document into exactly one outcome. Only the
// aggregator's errors count as failure; missing parse results and existing
// results without force-rerun are skips.
func (o *Orchestrator) processDocument(ctx context.Context, runID uuid.UUID, doc *types.Document, forceRerun bool) outcome {
	parse, err := o.store.LatestCompletedParseResult(ctx, doc.ID)
	if err != nil || parse == nil {
		if err != nil {
			log.Printf("[BATCH] run %s: document %s parse lookup failed: %v", runID, doc.ID, err)
			return outcomeFailed
		}
		return outcomeSkipped
	}

	if !forceRerun {
		exists, err := o.store.HasCheckResult(ctx, doc.ID, parse.ID)
		if err != nil {
			log.Printf("[BATCH] run %s: document %s dedup lookup failed: %v", runID, doc.ID, err)
			return outcomeFailed
		}
		if exists {
			return outcomeSkipped
		}
	}

	result, err := o.runner.Run(ctx, doc.ID, run.Options{BatchRunID: &runID})
	if err != nil {
		log.Printf("[BATCH] run %s: document %s failed: %v", runID, doc.ID, err)
		return outcomeFailed
	}

	if err := o.store.AddBatchRunTotals(ctx, runID, result.Summary, result.Usage); err != nil {
		log.Printf("[BATCH] run %s: document %s totals not recorded: %v", runID, doc.ID, err)
	}
	return outcomeCompleted
}

func (o *Orchestrator) runCancelled(ctx context.Context, runID uuid.UUID) (bool, error) {
	current, err := o.store.GetBatchRun(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("failed to read run status: %w", err)
	}
	if current == nil {
		return false, fmt.Errorf("batch run %s disappeared", runID)
	}
	return current.Status == types.BatchCancelled, nil
}

func (o *Orchestrator) targetDocuments(ctx context.Context, opts Options) ([]*types.Document, error) {
	documents, err := o.store.ListDocuments(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(opts.DocumentIDs) == 0 {
		return documents, nil
	}
	wanted := make(map[uuid.UUID]bool, len(opts.DocumentIDs))
	for _, id := range opts.DocumentIDs {
		wanted[id] = true
	}
	filtered := documents[:0]
	for _, doc := range documents {
		if wanted[doc.ID] {
			filtered = append(filtered, doc)
		}
	}
	return filtered, nil
}
