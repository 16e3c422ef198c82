// Package classify assigns semantic page types to parsed document pages and
// document types to whole documents, using a single completion call per
// document. Classification never fails the caller: provider errors degrade to
// "unknown" pages with the error recorded on each row.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/catalog"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/prompts"
	"github.com/planwise/plancheck/internal/types"
)

const (
	// chunkExcerptLimit caps how much of each chunk goes into the prompt.
	chunkExcerptLimit = 200
	// maxChunksPerPage caps how many chunks represent a page in the prompt.
	maxChunksPerPage = 5
	// classifyMaxTokens bounds the classification response.
	classifyMaxTokens = 8192
)

// Store is the persistence surface the classifier needs.
type Store interface {
	SavePageClassifications(ctx context.Context, classifications []types.PageClassification) error
	DeletePageClassifications(ctx context.Context, parseResultID uuid.UUID) error
	PageClassifications(ctx context.Context, parseResultID uuid.UUID) ([]types.PageClassification, error)
}

// Classifier classifies pages and documents against the rule catalog.
type Classifier struct {
	client llm.Client
	store  Store
	cat    *catalog.Catalog
}

// New creates a Classifier.
func New(client llm.Client, store Store, cat *catalog.Catalog) *Classifier {
	return &Classifier{client: client, store: store, cat: cat}
}

// pageVerdict is one entry of the model's classification response.
type pageVerdict struct {
	Page       int      `json:"page"`
	PageType   string   `json:"page_type"`
	Confidence int      `json:"confidence"`
	Signals    []string `json:"signals"`
}

type classifyResponse struct {
	Classifications []pageVerdict `json:"classifications"`
}

// ClassifyPages classifies every page of a parse result in one completion
// call, persists the rows, and returns them in page order. Every page in
// [1, pageCount] gets exactly one row; pages the model omits, and every page
// when the provider call fails outright, default to "unknown" with zero
// confidence. Callers must delete existing rows for the parse result first;
// the store rejects double classification.
func (c *Classifier) ClassifyPages(ctx context.Context, parseResultID uuid.UUID, chunks []types.Chunk, pageCount int) ([]types.PageClassification, types.Usage, error) {
	if pageCount < 1 {
		return nil, types.Usage{}, fmt.Errorf("page count must be at least 1, got %d", pageCount)
	}

	prompt := c.buildPrompt(chunks, pageCount)

	verdicts := map[int]pageVerdict{}
	var usage types.Usage
	var model, callErr string

	completion, err := c.client.Complete(ctx, llm.Request{
		Prompt:    prompt,
		MaxTokens: classifyMaxTokens,
		JSON:      true,
		Tier:      llm.TierLite,
	})
	if err != nil {
		// Classification failure never aborts the caller's flow. Every
		// page falls back to unknown and the error rides along on the rows.
		log.Printf("[CLASSIFY] classification call failed for parse result %s: %v", parseResultID, err)
		callErr = err.Error()
	} else {
		model = completion.Model
		usage = types.Usage{InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens}

		var parsed classifyResponse
		if jsonErr := json.Unmarshal([]byte(llm.CleanJSONBlock(completion.Text)), &parsed); jsonErr != nil {
			log.Printf("[CLASSIFY] unparseable classification response for parse result %s: %v", parseResultID, jsonErr)
		} else {
			for _, v := range parsed.Classifications {
				if v.Page < 1 || v.Page > pageCount {
					continue
				}
				verdicts[v.Page] = v
			}
		}
	}

	classifications := make([]types.PageClassification, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		row := types.PageClassification{
			ParseResultID: parseResultID,
			PageNumber:    page,
			PageType:      types.PageTypeUnknown,
			Model:         model,
			Error:         callErr,
		}
		if v, ok := verdicts[page]; ok {
			row.PageType = c.normalizePageType(v.PageType)
			row.Confidence = clampConfidence(v.Confidence)
			row.Signals = v.Signals
		}
		classifications = append(classifications, row)
	}

	if err := c.store.SavePageClassifications(ctx, classifications); err != nil {
		return nil, usage, fmt.Errorf("failed to persist classifications: %w", err)
	}

	log.Printf("[CLASSIFY] classified %d pages for parse result %s", pageCount, parseResultID)
	return classifications, usage, nil
}

// EnsurePageClassifications returns existing classifications for a parse
// result, classifying first when none exist or force is set. Force deletes
// the existing rows so reclassification never accumulates stale rows.
func (c *Classifier) EnsurePageClassifications(ctx context.Context, parseResultID uuid.UUID, chunks []types.Chunk, pageCount int, force bool) ([]types.PageClassification, types.Usage, error) {
	if force {
		if err := c.store.DeletePageClassifications(ctx, parseResultID); err != nil {
			return nil, types.Usage{}, err
		}
	} else {
		existing, err := c.store.PageClassifications(ctx, parseResultID)
		if err != nil {
			return nil, types.Usage{}, err
		}
		if len(existing) > 0 {
			return existing, types.Usage{}, nil
		}
	}
	return c.ClassifyPages(ctx, parseResultID, chunks, pageCount)
}

// normalizePageType maps model output onto catalog page types. Anything the
// catalog does not declare collapses to unknown.
func (c *Classifier) normalizePageType(pageType string) string {
	pt := strings.TrimSpace(strings.ToLower(pageType))
	if pt == "" || pt == types.PageTypeUnknown {
		return types.PageTypeUnknown
	}
	if _, ok := c.cat.PageType(pt); ok {
		return pt
	}
	return types.PageTypeUnknown
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// buildPrompt renders the classification prompt: the catalog's page types
// with their signal keywords, then each page's content excerpted chunk by
// chunk.
func (c *Classifier) buildPrompt(chunks []types.Chunk, pageCount int) string {
	var pageTypes strings.Builder
	for _, id := range c.cat.PageTypeOrder() {
		info, _ := c.cat.PageType(id)
		fmt.Fprintf(&pageTypes, "- %s: %s - %s", id, info.Name, info.Description)
		if len(info.ClassificationSignals) > 0 {
			fmt.Fprintf(&pageTypes, " (signals: %s)", strings.Join(info.ClassificationSignals, ", "))
		}
		pageTypes.WriteString("\n")
	}

	template := prompts.MustGet("classification.json", "classify-pages")
	return prompts.Format(template, map[string]string{
		"PageTypes":    strings.TrimRight(pageTypes.String(), "\n"),
		"PageCount":    fmt.Sprintf("%d", pageCount),
		"PagesContent": buildPagesContent(chunks, pageCount),
	})
}

// buildPagesContent groups chunk excerpts by page. Each page contributes at
// most maxChunksPerPage chunks of at most chunkExcerptLimit characters each,
// keeping the single-call prompt bounded regardless of document size.
func buildPagesContent(chunks []types.Chunk, pageCount int) string {
	byPage := make(map[int][]string)
	for _, ch := range chunks {
		if ch.PageNumber < 1 || ch.PageNumber > pageCount {
			continue
		}
		if len(byPage[ch.PageNumber]) >= maxChunksPerPage {
			continue
		}
		text := strings.TrimSpace(ch.Markdown)
		if text == "" {
			continue
		}
		if len(text) > chunkExcerptLimit {
			text = text[:chunkExcerptLimit]
		}
		byPage[ch.PageNumber] = append(byPage[ch.PageNumber], text)
	}

	var b strings.Builder
	for page := 1; page <= pageCount; page++ {
		fmt.Fprintf(&b, "--- Page %d ---\n", page)
		if excerpts, ok := byPage[page]; ok {
			b.WriteString(strings.Join(excerpts, "\n"))
		} else {
			b.WriteString("(no extracted content)")
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
