package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/planwise/plancheck/internal/types"
)

// CreateDocument stores a new document record.
func (db *DB) CreateDocument(ctx context.Context, doc *types.Document) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO documents (project_id, filename, original_filename, content_type,
		                        file_size, file_hash, blob_key, page_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0))
		 RETURNING id, created_at`,
		doc.ProjectID, doc.Filename, doc.OriginalFilename, doc.ContentType,
		doc.FileSize, doc.FileHash, doc.BlobKey, doc.PageCount,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

const documentColumns = `id, project_id, filename, original_filename,
	COALESCE(content_type, ''), COALESCE(file_size, 0), COALESCE(file_hash, ''),
	blob_key, COALESCE(page_count, 0), COALESCE(document_type, ''),
	COALESCE(classification_confidence, 0), classification_signals,
	COALESCE(classification_model, ''), created_at`

func scanDocument(row pgx.Row) (*types.Document, error) {
	var d types.Document
	var signalsJSON []byte
	err := row.Scan(&d.ID, &d.ProjectID, &d.Filename, &d.OriginalFilename,
		&d.ContentType, &d.FileSize, &d.FileHash, &d.BlobKey, &d.PageCount,
		&d.DocumentType, &d.ClassificationConfidence, &signalsJSON,
		&d.ClassificationModel, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if signalsJSON != nil {
		_ = json.Unmarshal(signalsJSON, &d.ClassificationSignals)
	}
	return &d, nil
}

// GetDocument retrieves a document by ID. Returns nil if not found.
func (db *DB) GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	doc, err := scanDocument(db.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents in a project, oldest first.
func (db *DB) ListDocuments(ctx context.Context, projectID uuid.UUID) ([]*types.Document, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateDocumentClassification stores document-level classification fields.
func (db *DB) UpdateDocumentClassification(ctx context.Context, id uuid.UUID, docType string, confidence int, signals []string, model string) error {
	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`UPDATE documents
		 SET document_type = $2, classification_confidence = $3,
		     classification_signals = $4, classification_model = $5
		 WHERE id = $1`,
		id, docType, confidence, signalsJSON, model)
	if err != nil {
		return fmt.Errorf("failed to update document classification: %w", err)
	}
	return nil
}

// UpdateDocumentPageCount sets the page count if not already known.
func (db *DB) UpdateDocumentPageCount(ctx context.Context, id uuid.UUID, pageCount int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE documents SET page_count = $2 WHERE id = $1 AND page_count IS NULL`,
		id, pageCount)
	if err != nil {
		return fmt.Errorf("failed to update document page count: %w", err)
	}
	return nil
}
