package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/types"
)

// SavePageClassifications inserts classification rows for a parse result in
// one transaction. Callers must delete any existing rows first; the unique
// constraint on (parse_result_id, page_number) rejects double classification.
func (db *DB) SavePageClassifications(ctx context.Context, classifications []types.PageClassification) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range classifications {
		c := &classifications[i]
		signalsJSON, err := json.Marshal(c.Signals)
		if err != nil {
			return fmt.Errorf("failed to marshal signals: %w", err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO page_classifications (parse_result_id, page_number, page_type,
			                                   confidence, signals, classification_model, error_message)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
			 RETURNING id, classified_at`,
			c.ParseResultID, c.PageNumber, c.PageType, c.Confidence,
			signalsJSON, c.Model, c.Error,
		).Scan(&c.ID, &c.ClassifiedAt)
		if err != nil {
			return fmt.Errorf("failed to save classification for page %d: %w", c.PageNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit classifications: %w", err)
	}
	return nil
}

// DeletePageClassifications removes all classification rows for a parse
// result. Used before forced reclassification.
func (db *DB) DeletePageClassifications(ctx context.Context, parseResultID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM page_classifications WHERE parse_result_id = $1`, parseResultID)
	if err != nil {
		return fmt.Errorf("failed to delete classifications: %w", err)
	}
	return nil
}

// PageClassifications returns classification rows for a parse result in page
// order.
func (db *DB) PageClassifications(ctx context.Context, parseResultID uuid.UUID) ([]types.PageClassification, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, parse_result_id, page_number, page_type, confidence, signals,
		        COALESCE(classification_model, ''), COALESCE(error_message, ''), classified_at
		 FROM page_classifications
		 WHERE parse_result_id = $1
		 ORDER BY page_number`,
		parseResultID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classifications: %w", err)
	}
	defer rows.Close()

	var out []types.PageClassification
	for rows.Next() {
		var c types.PageClassification
		var signalsJSON []byte
		if err := rows.Scan(&c.ID, &c.ParseResultID, &c.PageNumber, &c.PageType,
			&c.Confidence, &signalsJSON, &c.Model, &c.Error, &c.ClassifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		if signalsJSON != nil {
			_ = json.Unmarshal(signalsJSON, &c.Signals)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
