package classify

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

// docContentLimit caps how much document content goes into the
// document-classification prompt.
const docContentLimit = 5000

// DocumentClassification is the outcome of classifying a whole document.
type DocumentClassification struct {
	DocumentType string   `json:"document_type"`
	Confidence   int      `json:"confidence"`
	Signals      []string `json:"signals_found"`
	Model        string   `json:"model,omitempty"`
	Usage        types.Usage
}

// ClassifyDocument assigns a document type from the catalog based on the
// document's leading content. Unlike page classification this path surfaces
// provider errors to the caller; it is invoked interactively, not from the
// batch pipeline.
func (c *Classifier) ClassifyDocument(ctx context.Context, content string) (*DocumentClassification, error) {
	order := c.cat.DocumentTypeOrder()
	if len(order) == 0 {
		return nil, fmt.Errorf("catalog declares no document types")
	}

	var docTypes strings.Builder
	for _, id := range order {
		dt := c.cat.DocumentTypes()[id]
		fmt.Fprintf(&docTypes, "- %s: %s - %s\n", id, dt.Name, dt.Description)
	}

	if len(content) > docContentLimit {
		content = content[:docContentLimit]
	}

	template := prompts.MustGet("classification.json", "classify-document")
	prompt := prompts.Format(template, map[string]string{
		"DocumentTypes": strings.TrimRight(docTypes.String(), "\n"),
		"ContentLimit":  fmt.Sprintf("%d", docContentLimit),
		"Content":       content,
	})

	completion, err := c.client.Complete(ctx, llm.Request{
		Prompt: prompt,
		JSON:   true,
		Tier:   llm.TierLite,
	})
	if err != nil {
		return nil, fmt.Errorf("document classification call failed: %w", err)
	}

	var result DocumentClassification
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(completion.Text)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse document classification: %w", err)
	}

	result.DocumentType = strings.TrimSpace(strings.ToLower(result.DocumentType))
	if _, ok := c.cat.DocumentTypes()[result.DocumentType]; !ok {
		log.Printf("[CLASSIFY] model returned undeclared document type %q", result.DocumentType)
		result.DocumentType = types.PageTypeUnknown
		result.Confidence = 0
	}
	result.Confidence = clampConfidence(result.Confidence)
	result.Model = completion.Model
	result.Usage = types.Usage{InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens}
	return &result, nil
}
