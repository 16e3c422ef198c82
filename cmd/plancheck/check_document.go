package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/checks"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/observability"
	"github.com/planwise/plancheck/internal/types"
)

var checkDocumentID string

var checkDocumentCmd = &cobra.Command{
	Use:   "check-document",
	Short: "Run document-level checks without page classification",
	Long:  "Evaluates a document type's check lists against the whole document in one call. The document must be parsed and classified with classify-document first; run-checks is the page-aware path.",
	RunE:  runCheckDocument,
}

func init() {
	checkDocumentCmd.Flags().StringVarP(&checkDocumentID, "document", "d", "", "Document ID (required)")

	if err := checkDocumentCmd.MarkFlagRequired("document"); err != nil {
		panic(fmt.Sprintf("failed to mark document flag as required: %v", err))
	}

	rootCmd.AddCommand(checkDocumentCmd)
}

func runCheckDocument(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(checkDocumentID)
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	doc, err := database.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document %s not found", documentID)
	}
	if doc.DocumentType == "" {
		return fmt.Errorf("document %s has no document type; run classify-document first", documentID)
	}

	parse, err := database.LatestCompletedParseResult(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load parse result: %w", err)
	}
	if parse == nil {
		return fmt.Errorf("document %s has no completed parse; run parse first", documentID)
	}

	chunks, err := database.ChunksForParseResult(ctx, parse.ID)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}

	registry, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	cat := registry.Catalog()

	completeness, compliance := cat.ChecksForDocumentType(doc.DocumentType)
	if len(completeness)+len(compliance) == 0 {
		return fmt.Errorf("document type %q declares no document-level checks", doc.DocumentType)
	}

	docTypeName := doc.DocumentType
	if info, ok := cat.DocumentTypes()[doc.DocumentType]; ok && info.Name != "" {
		docTypeName = info.Name
	}

	var parts []string
	for _, chunk := range chunks {
		parts = append(parts, chunk.Markdown)
	}
	content := strings.Join(parts, "\n\n")

	client, err := llm.NewClient(ctx, modelConfig(cfg), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	started := time.Now()
	evaluator := checks.NewEvaluator(client)
	outcome := evaluator.EvaluateDocument(ctx, content, chunks, docTypeName, completeness, compliance)

	result := &types.CheckResult{
		DocumentID:    documentID,
		ParseResultID: parse.ID,
		ProjectID:     doc.ProjectID,
		DocumentType:  doc.DocumentType,
		Completeness:  outcome.Completeness,
		Compliance:    outcome.Compliance,
		Model:         outcome.Model,
		Usage:         outcome.Usage,
		Status:        types.CheckCompleted,
		DurationMS:    int(time.Since(started).Milliseconds()),
	}
	for _, v := range outcome.Completeness {
		result.Summary.Count(v.Status)
	}
	for _, v := range outcome.Compliance {
		result.Summary.Count(v.Status)
	}

	if err := database.CreateCheckResult(ctx, result); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	if err := database.AddProjectUsage(ctx, doc.ProjectID, outcome.Usage); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record usage: %v\n", err)
	}

	observability.NewPrinter(os.Stdout).PrintCheckResult(result)
	return nil
}
