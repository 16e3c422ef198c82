package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/prompts"
	"github.com/planwise/plancheck/internal/types"
)

// docChunkListLimit caps how many chunks are listed for citation in the
// document-level prompt.
const docChunkListLimit = 100

// DocumentResult is the outcome of the document-level check path.
type DocumentResult struct {
	Completeness []types.CheckVerdict
	Compliance   []types.CheckVerdict
	Usage        types.Usage
	Model        string
}

type documentResponse struct {
	Completeness []rawVerdict `json:"completeness_results"`
	Compliance   []rawVerdict `json:"compliance_results"`
}

// EvaluateDocument runs the document-level check path: all of a document
// type's completeness and compliance checks against the whole document in one
// call, without page classification. Predates the batched per-page path and
// kept for document types whose checks are not page-scoped. Same degradation
// rules apply: missing checks default to failed "Not evaluated", provider
// errors fail every check with the message in notes.
func (e *Evaluator) EvaluateDocument(ctx context.Context, content string, chunks []types.Chunk, docTypeName string, completeness, compliance []types.CheckDefinition) DocumentResult {
	if len(completeness)+len(compliance) == 0 {
		return DocumentResult{Model: e.client.GetModel(e.tier)}
	}

	if len(content) > promptContentCap {
		content = content[:promptContentCap]
	}

	template := prompts.MustGet("checks.json", "evaluate-document")
	prompt := prompts.Format(template, map[string]string{
		"DocumentType":     docTypeName,
		"Content":          content,
		"Chunks":           buildChunkList(chunks),
		"CompletenessList": buildCheckList(completeness),
		"ComplianceList":   buildCheckList(compliance),
	})

	completion, err := e.client.Complete(ctx, llm.Request{
		Prompt:    prompt,
		MaxTokens: evaluateMaxTokens,
		JSON:      true,
		Tier:      e.tier,
	})
	if err != nil {
		log.Printf("[CHECKS] document evaluation call failed: %v", err)
		notes := fmt.Sprintf("Error: %s", err.Error())
		return DocumentResult{
			Completeness: failedDocumentVerdicts(completeness, notes),
			Compliance:   failedDocumentVerdicts(compliance, notes),
			Model:        e.client.GetModel(e.tier),
		}
	}

	var resp documentResponse
	if jsonErr := json.Unmarshal([]byte(llm.CleanJSONBlock(completion.Text)), &resp); jsonErr != nil {
		log.Printf("[CHECKS] unparseable document evaluation response: %v", jsonErr)
	}

	return DocumentResult{
		Completeness: reconcileDocument(completeness, resp.Completeness),
		Compliance:   reconcileDocument(compliance, resp.Compliance),
		Usage:        types.Usage{InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens},
		Model:        completion.Model,
	}
}

// reconcileDocument gives every expected check exactly one verdict. Document
// verdicts carry no page number.
func reconcileDocument(checkDefs []types.CheckDefinition, raw []rawVerdict) []types.CheckVerdict {
	byID := make(map[string]rawVerdict, len(raw))
	for _, v := range raw {
		if _, dup := byID[v.CheckID]; dup {
			continue
		}
		byID[v.CheckID] = v
	}

	verdicts := make([]types.CheckVerdict, 0, len(checkDefs))
	for _, def := range checkDefs {
		verdict := types.CheckVerdict{
			CheckID:       def.ID,
			CheckName:     def.Name,
			Category:      def.Category,
			Status:        types.StatusFail,
			RuleReference: def.RuleReference,
			Notes:         notesNotEvaluated,
		}
		if v, ok := byID[def.ID]; ok {
			verdict.Status = normalizeStatus(v.Status)
			verdict.Confidence = clampConfidence(v.Confidence)
			verdict.FoundValue = v.FoundValue
			verdict.Notes = v.Notes
			verdict.ChunkIDs = v.ChunkIDs
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts
}

func failedDocumentVerdicts(checkDefs []types.CheckDefinition, notes string) []types.CheckVerdict {
	verdicts := make([]types.CheckVerdict, 0, len(checkDefs))
	for _, def := range checkDefs {
		verdicts = append(verdicts, types.CheckVerdict{
			CheckID:       def.ID,
			CheckName:     def.Name,
			Category:      def.Category,
			Status:        types.StatusFail,
			RuleReference: def.RuleReference,
			Notes:         notes,
		})
	}
	return verdicts
}

func buildCheckList(checkDefs []types.CheckDefinition) string {
	if len(checkDefs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, def := range checkDefs {
		fmt.Fprintf(&b, "- %s: %s - %s", def.ID, def.Name, def.Question)
		if def.RuleReference != "" {
			fmt.Fprintf(&b, " (Rule: %s)", def.RuleReference)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildChunkList(chunks []types.Chunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i >= docChunkListLimit {
			fmt.Fprintf(&b, "... and %d more chunks\n", len(chunks)-docChunkListLimit)
			break
		}
		excerpt := strings.TrimSpace(ch.Markdown)
		if len(excerpt) > 80 {
			excerpt = excerpt[:80]
		}
		fmt.Fprintf(&b, "- %s (page %d): %s\n", ch.ChunkID, ch.PageNumber, excerpt)
	}
	return strings.TrimRight(b.String(), "\n")
}
