// Package vision turns document bytes into markdown and positioned chunks
// via a multimodal model. The pipeline consumes only the chunks and the page
// count; everything else is kept for the review UI.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/prompts"
	"github.com/planwise/plancheck/internal/types"
)

// Result is one parse of a document.
type Result struct {
	Markdown  string
	Chunks    []types.Chunk
	PageCount int
	Usage     types.Usage
	Model     string
}

// Parser extracts content from document bytes.
type Parser interface {
	// Parse extracts markdown and chunks from a document.
	Parse(ctx context.Context, data []byte, filename string) (*Result, error)
	// Name identifies the parser in ParseResult records and blob keys.
	Name() string
}

// GeminiParser parses documents with a Gemini multimodal model.
type GeminiParser struct {
	client *genai.Client
	config *llm.Config
}

// NewGeminiParser creates a GeminiParser.
func NewGeminiParser(ctx context.Context, config *llm.Config, apiKey string) (*GeminiParser, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = llm.DefaultConfig()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiParser{client: client, config: config}, nil
}

// Name identifies this parser.
func (p *GeminiParser) Name() string { return "gemini-vision" }

// Close releases the underlying client.
func (p *GeminiParser) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

type parsedPage struct {
	Page   int           `json:"page"`
	Chunks []parsedChunk `json:"chunks"`
}

type parsedChunk struct {
	Type     string             `json:"type"`
	Markdown string             `json:"markdown"`
	BBox     *types.BoundingBox `json:"bbox"`
}

type parseResponse struct {
	Pages []parsedPage `json:"pages"`
}

// Parse sends the document to the model and converts the response into
// 1-indexed chunks. The model reports 0-based page indices; stored pages are
// 1-based throughout the system.
func (p *GeminiParser) Parse(ctx context.Context, data []byte, filename string) (*Result, error) {
	modelName := p.config.GetModel(llm.TierAdvanced)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", llm.TierAdvanced)
	}

	model := p.client.GenerativeModel(modelName)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType(filename), Data: data},
		genai.Text(prompts.MustGet("vision.json", "parse-document")),
	)
	if err != nil {
		return nil, fmt.Errorf("vision parse call failed: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	var parsed parseResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(text)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}
	if len(parsed.Pages) == 0 {
		return nil, fmt.Errorf("vision response contains no pages")
	}

	result := &Result{Model: modelName}
	if resp.UsageMetadata != nil {
		result.Usage = types.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	var markdown strings.Builder
	index := 0
	for _, page := range parsed.Pages {
		pageNumber := page.Page + 1
		if pageNumber > result.PageCount {
			result.PageCount = pageNumber
		}
		for _, ch := range page.Chunks {
			if strings.TrimSpace(ch.Markdown) == "" {
				continue
			}
			result.Chunks = append(result.Chunks, types.Chunk{
				Index:      index,
				ChunkID:    fmt.Sprintf("chunk-%d", index),
				Type:       ch.Type,
				Markdown:   ch.Markdown,
				PageNumber: pageNumber,
				BBox:       ch.BBox,
			})
			markdown.WriteString(ch.Markdown)
			markdown.WriteString("\n\n")
			index++
		}
	}
	result.Markdown = strings.TrimRight(markdown.String(), "\n")
	return result, nil
}

func mimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/pdf"
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
