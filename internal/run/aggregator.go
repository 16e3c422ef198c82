// Package run drives one document's full check run: classification, batch
// planning, per-batch evaluation, verdict merging, and persistence of exactly
// one immutable CheckResult.
package run

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/batching"
	"github.com/planwise/plancheck/internal/catalog"
	"github.com/planwise/plancheck/internal/checks"
	"github.com/planwise/plancheck/internal/classify"
	"github.com/planwise/plancheck/internal/types"
)

// ErrNotParsed is returned when a document has no completed parse result.
var ErrNotParsed = errors.New("document not parsed")

// ErrDocumentNotFound is returned when the document does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// Store is the persistence surface the aggregator needs.
type Store interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	LatestCompletedParseResult(ctx context.Context, documentID uuid.UUID) (*types.ParseResult, error)
	ChunksForParseResult(ctx context.Context, parseResultID uuid.UUID) ([]types.Chunk, error)
	CreateCheckResult(ctx context.Context, result *types.CheckResult) error
	AddProjectUsage(ctx context.Context, projectID uuid.UUID, usage types.Usage) error
}

// Options adjust one run.
type Options struct {
	// ForceReclassify deletes and recreates page classifications first.
	ForceReclassify bool
	// BatchRunID links the result to a parent batch job.
	BatchRunID *uuid.UUID
}

// Aggregator runs checks for single documents.
type Aggregator struct {
	store      Store
	classifier *classify.Classifier
	evaluator  *checks.Evaluator
	planner    *batching.Planner
	cat        *catalog.Catalog
}

// New creates an Aggregator.
func New(store Store, classifier *classify.Classifier, evaluator *checks.Evaluator, planner *batching.Planner, cat *catalog.Catalog) *Aggregator {
	return &Aggregator{
		store:      store,
		classifier: classifier,
		evaluator:  evaluator,
		planner:    planner,
		cat:        cat,
	}
}

// Run executes all applicable checks against the document's latest completed
// parse and persists one new CheckResult. Run numbers are assigned at commit
// time by the store, so a failure anywhere before the commit leaves no trace
// in the document's history.
func (a *Aggregator) Run(ctx context.Context, documentID uuid.UUID, opts Options) (*types.CheckResult, error) {
	started := time.Now()

	doc, err := a.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	parse, err := a.store.LatestCompletedParseResult(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parse result: %w", err)
	}
	if parse == nil {
		return nil, ErrNotParsed
	}

	chunks, err := a.store.ChunksForParseResult(ctx, parse.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	classifications, classifyUsage, err := a.classifier.EnsurePageClassifications(
		ctx, parse.ID, chunks, parse.PageCount, opts.ForceReclassify)
	if err != nil {
		return nil, fmt.Errorf("failed to classify pages: %w", err)
	}

	pageContent := batching.PageContent(chunks)
	batches := a.planner.Plan(classifications, pageContent, a.cat.PageTypeOrder())

	pageTypeByPage := make(map[int]string, len(classifications))
	for _, c := range classifications {
		pageTypeByPage[c.PageNumber] = c.PageType
	}

	result := &types.CheckResult{
		DocumentID:    documentID,
		ParseResultID: parse.ID,
		ProjectID:     doc.ProjectID,
		BatchRunID:    opts.BatchRunID,
		DocumentType:  doc.DocumentType,
		Usage:         classifyUsage,
		Status:        types.CheckCompleted,
	}

	evaluated := 0
	for _, batch := range batches {
		applicable := a.cat.ChecksForPageType(batch.PageType)
		if len(applicable) == 0 {
			continue
		}
		var typeName string
		if info, ok := a.cat.PageType(batch.PageType); ok {
			typeName = info.Name
		}

		// Batches evaluate sequentially within a document; cross-document
		// concurrency is bounded by the orchestrator's ceiling.
		br := a.evaluator.EvaluateBatch(ctx, batch, applicable, pageContent, typeName)
		evaluated++
		result.Usage = result.Usage.Add(br.Usage)
		if result.Model == "" {
			result.Model = br.Model
		}
		for _, v := range br.Verdicts {
			if v.Category == types.CategoryCompliance {
				result.Compliance = append(result.Compliance, v)
			} else {
				result.Completeness = append(result.Completeness, v)
			}
			result.Summary.Count(v.Status)
		}
	}

	result.DurationMS = int(time.Since(started).Milliseconds())

	if err := a.store.CreateCheckResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist check result: %w", err)
	}

	if err := a.store.AddProjectUsage(ctx, doc.ProjectID, result.Usage); err != nil {
		// The run itself committed; usage accounting failure is logged
		// rather than undoing the result.
		log.Printf("[RUN] failed to add usage for project %s: %v", doc.ProjectID, err)
	}

	log.Printf("[RUN] document %s run %d: %d batches evaluated, %d verdicts (%d passed, %d failed, %d need review)",
		documentID, result.RunNumber, evaluated, result.Summary.TotalChecks,
		result.Summary.Passed, result.Summary.Failed, result.Summary.NeedsReview)
	return result, nil
}
