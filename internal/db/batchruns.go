package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/planwise/plancheck/internal/types"
)

// CreateBatchRun inserts a pending batch run and fills in its id and
// created_at.
func (db *DB) CreateBatchRun(ctx context.Context, run *types.BatchCheckRun) error {
	if run.Status == "" {
		run.Status = types.BatchPending
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO batch_check_runs (project_id, status, total_documents, model, force_rerun)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 RETURNING id, created_at`,
		run.ProjectID, run.Status, run.TotalDocuments, run.Model, run.ForceRerun,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create batch run: %w", err)
	}
	return nil
}

const batchRunColumns = `id, project_id, status,
	total_documents, completed_documents, failed_documents, skipped_documents,
	total_passed, total_failed, total_needs_review,
	total_input_tokens, total_output_tokens,
	COALESCE(model, ''), force_rerun, COALESCE(error_message, ''),
	created_at, started_at, completed_at`

func scanBatchRun(row pgx.Row) (*types.BatchCheckRun, error) {
	var r types.BatchCheckRun
	err := row.Scan(&r.ID, &r.ProjectID, &r.Status,
		&r.TotalDocuments, &r.CompletedDocuments, &r.FailedDocuments, &r.SkippedDocuments,
		&r.TotalPassed, &r.TotalFailed, &r.TotalNeedsReview,
		&r.Usage.InputTokens, &r.Usage.OutputTokens,
		&r.Model, &r.ForceRerun, &r.ErrorMessage,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetBatchRun returns a batch run by id, or nil when it does not exist.
func (db *DB) GetBatchRun(ctx context.Context, id uuid.UUID) (*types.BatchCheckRun, error) {
	r, err := scanBatchRun(db.pool.QueryRow(ctx,
		`SELECT `+batchRunColumns+` FROM batch_check_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch run: %w", err)
	}
	return r, nil
}

// ListBatchRuns returns a project's batch runs newest first.
func (db *DB) ListBatchRuns(ctx context.Context, projectID uuid.UUID) ([]*types.BatchCheckRun, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+batchRunColumns+`
		 FROM batch_check_runs
		 WHERE project_id = $1
		 ORDER BY created_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer rows.Close()

	var out []*types.BatchCheckRun
	for rows.Next() {
		r, err := scanBatchRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkBatchRunProcessing moves a pending run to processing and stamps
// started_at. It is a no-op if the run already left pending.
func (db *DB) MarkBatchRunProcessing(ctx context.Context, id uuid.UUID, totalDocuments int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE batch_check_runs
		 SET status = $2, total_documents = $3, started_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, types.BatchProcessing, totalDocuments, types.BatchPending)
	if err != nil {
		return fmt.Errorf("failed to mark batch run processing: %w", err)
	}
	return nil
}

// BatchRunCounter names one of the per-document progress counters.
type BatchRunCounter string

// Batch run counters
const (
	CounterCompleted BatchRunCounter = "completed_documents"
	CounterFailed    BatchRunCounter = "failed_documents"
	CounterSkipped   BatchRunCounter = "skipped_documents"
)

// IncrementBatchRunCounter bumps one progress counter by one. Each increment
// is its own statement so progress survives a crash mid-run.
func (db *DB) IncrementBatchRunCounter(ctx context.Context, id uuid.UUID, counter BatchRunCounter) error {
	var col string
	switch counter {
	case CounterCompleted, CounterFailed, CounterSkipped:
		col = string(counter)
	default:
		return fmt.Errorf("unknown batch run counter: %s", counter)
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE batch_check_runs SET `+col+` = `+col+` + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}
	return nil
}

// AddBatchRunTotals accumulates one document's verdict counts and token usage
// into the run. Additions are atomic in the database, not read-modify-write.
func (db *DB) AddBatchRunTotals(ctx context.Context, id uuid.UUID, summary types.Summary, usage types.Usage) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE batch_check_runs
		 SET total_passed = total_passed + $2,
		     total_failed = total_failed + $3,
		     total_needs_review = total_needs_review + $4,
		     total_input_tokens = total_input_tokens + $5,
		     total_output_tokens = total_output_tokens + $6
		 WHERE id = $1`,
		id, summary.Passed, summary.Failed, summary.NeedsReview,
		usage.InputTokens, usage.OutputTokens)
	if err != nil {
		return fmt.Errorf("failed to add batch run totals: %w", err)
	}
	return nil
}

// FinalizeBatchRun moves a run to a terminal status and stamps completed_at.
// Runs already in a terminal state are left alone.
func (db *DB) FinalizeBatchRun(ctx context.Context, id uuid.UUID, status types.BatchRunStatus, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE batch_check_runs
		 SET status = $2, error_message = NULLIF($3, ''), completed_at = NOW()
		 WHERE id = $1 AND status NOT IN ($4, $5, $6, $7)`,
		id, status, errorMessage,
		types.BatchCompleted, types.BatchCompletedWithErrors, types.BatchFailed, types.BatchCancelled)
	if err != nil {
		return fmt.Errorf("failed to finalize batch run: %w", err)
	}
	return nil
}

// CancelBatchRun requests cancellation of a pending or processing run and
// reports whether the request took effect.
func (db *DB) CancelBatchRun(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE batch_check_runs
		 SET status = $2, completed_at = NOW()
		 WHERE id = $1 AND status IN ($3, $4)`,
		id, types.BatchCancelled, types.BatchPending, types.BatchProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to cancel batch run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
