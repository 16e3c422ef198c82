// Package checks evaluates catalog checks against batches of same-type pages
// using one completion call per batch, reconciling the model's response
// against the expected check list so every (page, check) pair ends up with
// exactly one verdict.
package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/planwise/plancheck/internal/batching"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/prompts"
	"github.com/planwise/plancheck/internal/types"
)

const (
	// promptContentCap hard-caps the combined page content embedded in one
	// evaluation prompt. Content beyond the cap truncates silently; the
	// planner's budget makes this rare.
	promptContentCap = 50000
	// evaluateMaxTokens bounds the evaluation response.
	evaluateMaxTokens = 16384
	// notesNotEvaluated marks verdicts the model's response omitted.
	notesNotEvaluated = "Not evaluated"
)

// Evaluator runs batched check evaluation against a completion provider.
type Evaluator struct {
	client llm.Client
	tier   llm.ModelTier
}

// NewEvaluator creates an Evaluator using the standard model tier.
func NewEvaluator(client llm.Client) *Evaluator {
	return &Evaluator{client: client, tier: llm.TierStandard}
}

// Result is one batch's evaluation outcome. Failed batches still produce a
// full verdict set, with every verdict marked failed and the provider error
// in its notes.
type Result struct {
	Verdicts []types.CheckVerdict
	Usage    types.Usage
	Model    string
}

// rawVerdict is one entry of the model's response, all fields optional.
type rawVerdict struct {
	Page       int      `json:"page"`
	CheckID    string   `json:"check_id"`
	Status     string   `json:"status"`
	Confidence int      `json:"confidence"`
	FoundValue string   `json:"found_value"`
	Notes      string   `json:"notes"`
	ChunkIDs   []string `json:"chunk_ids"`
}

type evaluateResponse struct {
	Verdicts []rawVerdict `json:"verdicts"`
}

// EvaluateBatch evaluates every applicable check against every page of the
// batch in one completion call. The returned verdict set always covers each
// (page, check) pair exactly once: pairs the model omitted default to a
// failed "Not evaluated" verdict, and a provider error fails every pair with
// the error message in notes and zero usage. Errors never propagate; one bad
// batch must not block the others.
func (e *Evaluator) EvaluateBatch(ctx context.Context, batch batching.Batch, checkDefs []types.CheckDefinition, pageContent map[int]string, pageTypeName string) Result {
	if len(batch.Pages) == 0 || len(checkDefs) == 0 {
		return Result{Model: e.client.GetModel(e.tier)}
	}

	prompt := buildBatchPrompt(batch, checkDefs, pageContent, pageTypeName)

	completion, err := e.client.Complete(ctx, llm.Request{
		Prompt:    prompt,
		MaxTokens: evaluateMaxTokens,
		JSON:      true,
		Tier:      e.tier,
	})
	if err != nil {
		log.Printf("[CHECKS] evaluation call failed for %s batch (pages %v): %v", batch.PageType, batch.Pages, err)
		return Result{
			Verdicts: failedVerdicts(batch, checkDefs, fmt.Sprintf("Error: %s", err.Error())),
			Model:    e.client.GetModel(e.tier),
		}
	}

	parsed := parseVerdicts(completion.Text)
	return Result{
		Verdicts: reconcile(batch, checkDefs, parsed),
		Usage:    types.Usage{InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens},
		Model:    completion.Model,
	}
}

// parseVerdicts leniently extracts the verdict list from model output. Any
// parse failure yields an empty list; reconciliation then fills defaults.
func parseVerdicts(text string) []rawVerdict {
	var resp evaluateResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(text)), &resp); err != nil {
		log.Printf("[CHECKS] unparseable evaluation response: %v", err)
		return nil
	}
	return resp.Verdicts
}

// reconcile produces exactly one verdict per (page, check) pair. The model's
// first verdict for a pair wins; verdicts for pages outside the batch or
// checks outside the list are discarded; missing pairs default to a failed
// "Not evaluated" verdict.
func reconcile(batch batching.Batch, checkDefs []types.CheckDefinition, raw []rawVerdict) []types.CheckVerdict {
	inBatch := make(map[int]bool, len(batch.Pages))
	for _, p := range batch.Pages {
		inBatch[p] = true
	}
	defByID := make(map[string]types.CheckDefinition, len(checkDefs))
	for _, def := range checkDefs {
		defByID[def.ID] = def
	}

	type pairKey struct {
		page    int
		checkID string
	}
	byPair := make(map[pairKey]rawVerdict)
	for _, v := range raw {
		if !inBatch[v.Page] {
			continue
		}
		if _, ok := defByID[v.CheckID]; !ok {
			continue
		}
		key := pairKey{v.Page, v.CheckID}
		if _, dup := byPair[key]; dup {
			continue
		}
		byPair[key] = v
	}

	verdicts := make([]types.CheckVerdict, 0, len(batch.Pages)*len(checkDefs))
	for _, page := range batch.Pages {
		for _, def := range checkDefs {
			verdict := types.CheckVerdict{
				CheckID:       def.ID,
				CheckName:     def.Name,
				Category:      def.Category,
				PageNumber:    page,
				PageType:      batch.PageType,
				Status:        types.StatusFail,
				RuleReference: def.RuleReference,
				Notes:         notesNotEvaluated,
			}
			if v, ok := byPair[pairKey{page, def.ID}]; ok {
				verdict.Status = normalizeStatus(v.Status)
				verdict.Confidence = clampConfidence(v.Confidence)
				verdict.FoundValue = v.FoundValue
				verdict.Notes = v.Notes
				verdict.ChunkIDs = v.ChunkIDs
			}
			verdicts = append(verdicts, verdict)
		}
	}
	return verdicts
}

// failedVerdicts marks every (page, check) pair failed with the given notes.
func failedVerdicts(batch batching.Batch, checkDefs []types.CheckDefinition, notes string) []types.CheckVerdict {
	verdicts := make([]types.CheckVerdict, 0, len(batch.Pages)*len(checkDefs))
	for _, page := range batch.Pages {
		for _, def := range checkDefs {
			verdicts = append(verdicts, types.CheckVerdict{
				CheckID:       def.ID,
				CheckName:     def.Name,
				Category:      def.Category,
				PageNumber:    page,
				PageType:      batch.PageType,
				Status:        types.StatusFail,
				RuleReference: def.RuleReference,
				Notes:         notes,
			})
		}
	}
	return verdicts
}

func normalizeStatus(s string) types.CheckStatus {
	switch types.CheckStatus(strings.TrimSpace(strings.ToLower(s))) {
	case types.StatusPass:
		return types.StatusPass
	case types.StatusNeedsReview:
		return types.StatusNeedsReview
	case types.StatusNA:
		return types.StatusNA
	default:
		return types.StatusFail
	}
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

// buildBatchPrompt renders one batch's evaluation prompt: each page's content
// under an explicit page header, then the check list. Combined page content
// is capped at promptContentCap characters, truncating silently.
func buildBatchPrompt(batch batching.Batch, checkDefs []types.CheckDefinition, pageContent map[int]string, pageTypeName string) string {
	var content strings.Builder
	remaining := promptContentCap
	for _, page := range batch.Pages {
		fmt.Fprintf(&content, "=== PAGE %d ===\n", page)
		text := pageContent[page]
		length := utf8.RuneCountInString(text)
		if length > remaining {
			text = truncateRunes(text, remaining)
			length = remaining
		}
		remaining -= length
		content.WriteString(text)
		content.WriteString("\n\n")
		if remaining == 0 {
			break
		}
	}

	if pageTypeName == "" {
		pageTypeName = batch.PageType
	}

	template := prompts.MustGet("checks.json", "evaluate-batch")
	return prompts.Format(template, map[string]string{
		"PageTypeName": pageTypeName,
		"PagesContent": strings.TrimRight(content.String(), "\n"),
		"ChecksList":   buildCheckList(checkDefs),
	})
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
