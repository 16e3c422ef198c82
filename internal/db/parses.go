package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/planwise/plancheck/internal/types"
)

// CreateParseResult stores a parse result with its chunks in one transaction.
func (db *DB) CreateParseResult(ctx context.Context, pr *types.ParseResult, chunks []types.Chunk) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO parse_results (document_id, parser, model, blob_key, markdown,
		                            chunk_count, page_count, input_tokens, output_tokens,
		                            status, error_message, processing_time_ms)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)
		 RETURNING id, created_at`,
		pr.DocumentID, pr.Parser, pr.Model, pr.BlobKey, pr.Markdown,
		len(chunks), pr.PageCount, pr.Usage.InputTokens, pr.Usage.OutputTokens,
		pr.Status, pr.ErrorMessage, pr.DurationMS,
	).Scan(&pr.ID, &pr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create parse result: %w", err)
	}
	pr.ChunkCount = len(chunks)

	for i := range chunks {
		c := &chunks[i]
		c.ParseResultID = pr.ID
		var left, top, right, bottom *float64
		if c.BBox != nil {
			left, top, right, bottom = &c.BBox.Left, &c.BBox.Top, &c.BBox.Right, &c.BBox.Bottom
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO chunks (parse_result_id, chunk_index, chunk_id, chunk_type,
			                     markdown, page_number, bbox_left, bbox_top, bbox_right, bbox_bottom)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id`,
			pr.ID, c.Index, c.ChunkID, c.Type, c.Markdown, c.PageNumber,
			left, top, right, bottom,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to create chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit parse result: %w", err)
	}
	return nil
}

// LatestCompletedParseResult returns the most recent completed parse result
// for a document, or nil when the document has never been parsed successfully.
func (db *DB) LatestCompletedParseResult(ctx context.Context, documentID uuid.UUID) (*types.ParseResult, error) {
	var pr types.ParseResult
	err := db.pool.QueryRow(ctx,
		`SELECT id, document_id, parser, COALESCE(model, ''), COALESCE(blob_key, ''),
		        COALESCE(markdown, ''), chunk_count, page_count, input_tokens, output_tokens,
		        status, COALESCE(error_message, ''), COALESCE(processing_time_ms, 0), created_at
		 FROM parse_results
		 WHERE document_id = $1 AND status = 'completed'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		documentID,
	).Scan(&pr.ID, &pr.DocumentID, &pr.Parser, &pr.Model, &pr.BlobKey,
		&pr.Markdown, &pr.ChunkCount, &pr.PageCount,
		&pr.Usage.InputTokens, &pr.Usage.OutputTokens,
		&pr.Status, &pr.ErrorMessage, &pr.DurationMS, &pr.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest parse result: %w", err)
	}
	return &pr, nil
}

// ChunksForParseResult returns the chunks of a parse result in document order.
func (db *DB) ChunksForParseResult(ctx context.Context, parseResultID uuid.UUID) ([]types.Chunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, parse_result_id, chunk_index, chunk_id, COALESCE(chunk_type, ''),
		        COALESCE(markdown, ''), COALESCE(page_number, 0),
		        bbox_left, bbox_top, bbox_right, bbox_bottom
		 FROM chunks
		 WHERE parse_result_id = $1
		 ORDER BY chunk_index`,
		parseResultID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var left, top, right, bottom *float64
		if err := rows.Scan(&c.ID, &c.ParseResultID, &c.Index, &c.ChunkID, &c.Type,
			&c.Markdown, &c.PageNumber, &left, &top, &right, &bottom); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if left != nil && top != nil && right != nil && bottom != nil {
			c.BBox = &types.BoundingBox{Left: *left, Top: *top, Right: *right, Bottom: *bottom}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
