package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/blob"
	"github.com/planwise/plancheck/internal/types"
)

// Store is the persistence surface the parse flow needs.
type Store interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	CreateParseResult(ctx context.Context, pr *types.ParseResult, chunks []types.Chunk) error
	UpdateDocumentPageCount(ctx context.Context, id uuid.UUID, pageCount int) error
}

// Service runs the parse flow: fetch the original upload, parse it, persist
// the ParseResult with its chunks, and archive the full parse JSON in the
// blob store.
type Service struct {
	parser Parser
	store  Store
	blobs  blob.Store
}

// NewService creates a Service.
func NewService(parser Parser, store Store, blobs blob.Store) *Service {
	return &Service{parser: parser, store: store, blobs: blobs}
}

// ParseDocument parses a document's stored upload and records the result. A
// provider or parse error records a failed ParseResult and returns the error;
// the caller decides whether to retry.
func (s *Service) ParseDocument(ctx context.Context, documentID uuid.UUID) (*types.ParseResult, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s not found", documentID)
	}

	data, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read original upload: %w", err)
	}

	result, parseErr := s.parser.Parse(ctx, data, doc.OriginalFilename)
	if parseErr != nil {
		failed := &types.ParseResult{
			DocumentID:   documentID,
			Parser:       s.parser.Name(),
			Status:       types.ParseFailed,
			ErrorMessage: parseErr.Error(),
		}
		if err := s.store.CreateParseResult(ctx, failed, nil); err != nil {
			log.Printf("[VISION] document %s: failed to record parse failure: %v", documentID, err)
		}
		return nil, parseErr
	}

	pr := &types.ParseResult{
		DocumentID: documentID,
		Parser:     s.parser.Name(),
		Model:      result.Model,
		Markdown:   result.Markdown,
		ChunkCount: len(result.Chunks),
		PageCount:  result.PageCount,
		Usage:      result.Usage,
		Status:     types.ParseCompleted,
	}
	if err := s.store.CreateParseResult(ctx, pr, result.Chunks); err != nil {
		return nil, fmt.Errorf("failed to persist parse result: %w", err)
	}

	if err := s.store.UpdateDocumentPageCount(ctx, documentID, result.PageCount); err != nil {
		log.Printf("[VISION] document %s: failed to update page count: %v", documentID, err)
	}

	// Archive the complete parse output for the review UI.
	archive, err := json.Marshal(struct {
		ParseResult *types.ParseResult `json:"parse_result"`
		Chunks      []types.Chunk      `json:"chunks"`
	}{pr, result.Chunks})
	if err == nil {
		key := blob.ParseKey(doc.ProjectID, documentID, s.parser.Name(), pr.ID)
		if _, putErr := s.blobs.Put(ctx, key, archive); putErr != nil {
			log.Printf("[VISION] document %s: failed to archive parse output: %v", documentID, putErr)
		}
	}

	log.Printf("[VISION] document %s: parsed %d pages into %d chunks", documentID, pr.PageCount, pr.ChunkCount)
	return pr, nil
}
