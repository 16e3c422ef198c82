package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/planwise/plancheck/internal/types"
)

// CreateCheckResult persists a check run and its per-page verdicts. The run
// number is assigned inside the transaction by counting prior runs for the
// document; the unique constraint on (document_id, run_number) makes
// concurrent assignment fail rather than duplicate. Results are immutable
// once written.
func (db *DB) CreateCheckResult(ctx context.Context, result *types.CheckResult) error {
	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM check_results WHERE document_id = $1`,
		result.DocumentID,
	).Scan(&result.RunNumber)
	if err != nil {
		return fmt.Errorf("failed to assign run number: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO check_results (document_id, parse_result_id, project_id, batch_run_id,
		                            run_number, document_type, summary, model,
		                            input_tokens, output_tokens, status, processing_time_ms)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11, $12)
		 RETURNING id, created_at`,
		result.DocumentID, result.ParseResultID, result.ProjectID, result.BatchRunID,
		result.RunNumber, result.DocumentType, summaryJSON, result.Model,
		result.Usage.InputTokens, result.Usage.OutputTokens, result.Status, result.DurationMS,
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create check result: %w", err)
	}

	for _, v := range result.Verdicts() {
		var chunkIDs []byte
		if len(v.ChunkIDs) > 0 {
			chunkIDs, err = json.Marshal(v.ChunkIDs)
			if err != nil {
				return fmt.Errorf("failed to marshal chunk ids: %w", err)
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO page_check_results (check_result_id, page_number, page_type,
			                                 check_id, check_name, check_type, status, confidence,
			                                 found_value, notes, rule_reference, chunk_ids)
			 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8,
			         NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12)`,
			result.ID, v.PageNumber, v.PageType,
			v.CheckID, v.CheckName, v.Category, v.Status, v.Confidence,
			v.FoundValue, v.Notes, v.RuleReference, chunkIDs,
		)
		if err != nil {
			return fmt.Errorf("failed to save verdict for check %s: %w", v.CheckID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit check result: %w", err)
	}
	return nil
}

// HasCheckResult reports whether the document has at least one run recorded
// against the given parse result.
func (db *DB) HasCheckResult(ctx context.Context, documentID, parseResultID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM check_results WHERE document_id = $1 AND parse_result_id = $2)`,
		documentID, parseResultID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check result existence: %w", err)
	}
	return exists, nil
}

// CountCheckResults returns how many runs the document has.
func (db *DB) CountCheckResults(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM check_results WHERE document_id = $1`, documentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count check results: %w", err)
	}
	return n, nil
}

const checkResultColumns = `id, document_id, parse_result_id, project_id, batch_run_id,
	run_number, COALESCE(document_type, ''), summary, COALESCE(model, ''),
	input_tokens, output_tokens, status, COALESCE(processing_time_ms, 0), created_at`

func scanCheckResult(row pgx.Row) (*types.CheckResult, error) {
	var r types.CheckResult
	var summaryJSON []byte
	err := row.Scan(&r.ID, &r.DocumentID, &r.ParseResultID, &r.ProjectID, &r.BatchRunID,
		&r.RunNumber, &r.DocumentType, &summaryJSON, &r.Model,
		&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Status, &r.DurationMS, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if summaryJSON != nil {
		if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
	}
	return &r, nil
}

// ListCheckHistory returns the document's runs newest first, without per-page
// verdicts.
func (db *DB) ListCheckHistory(ctx context.Context, documentID uuid.UUID) ([]*types.CheckResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+checkResultColumns+`
		 FROM check_results
		 WHERE document_id = $1
		 ORDER BY run_number DESC`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list check history: %w", err)
	}
	defer rows.Close()

	var out []*types.CheckResult
	for rows.Next() {
		r, err := scanCheckResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestCheckResult returns the document's most recent run with its verdicts
// loaded, or nil when the document has never been checked.
func (db *DB) LatestCheckResult(ctx context.Context, documentID uuid.UUID) (*types.CheckResult, error) {
	r, err := scanCheckResult(db.pool.QueryRow(ctx,
		`SELECT `+checkResultColumns+`
		 FROM check_results
		 WHERE document_id = $1
		 ORDER BY run_number DESC
		 LIMIT 1`,
		documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest check result: %w", err)
	}
	if err := db.loadVerdicts(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetCheckResult returns one run by id with its verdicts loaded, or nil when
// no such run exists.
func (db *DB) GetCheckResult(ctx context.Context, id uuid.UUID) (*types.CheckResult, error) {
	r, err := scanCheckResult(db.pool.QueryRow(ctx,
		`SELECT `+checkResultColumns+` FROM check_results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check result: %w", err)
	}
	if err := db.loadVerdicts(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (db *DB) loadVerdicts(ctx context.Context, r *types.CheckResult) error {
	rows, err := db.pool.Query(ctx,
		`SELECT page_number, COALESCE(page_type, ''), check_id, COALESCE(check_name, ''),
		        check_type, status, confidence, COALESCE(found_value, ''),
		        COALESCE(notes, ''), COALESCE(rule_reference, ''), chunk_ids
		 FROM page_check_results
		 WHERE check_result_id = $1
		 ORDER BY page_number, check_id`,
		r.ID)
	if err != nil {
		return fmt.Errorf("failed to load verdicts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v types.CheckVerdict
		var chunkIDs []byte
		if err := rows.Scan(&v.PageNumber, &v.PageType, &v.CheckID, &v.CheckName,
			&v.Category, &v.Status, &v.Confidence, &v.FoundValue,
			&v.Notes, &v.RuleReference, &chunkIDs); err != nil {
			return fmt.Errorf("failed to scan verdict: %w", err)
		}
		if chunkIDs != nil {
			_ = json.Unmarshal(chunkIDs, &v.ChunkIDs)
		}
		if v.Category == types.CategoryCompliance {
			r.Compliance = append(r.Compliance, v)
		} else {
			r.Completeness = append(r.Completeness, v)
		}
	}
	return rows.Err()
}
