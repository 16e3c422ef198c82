package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/classify"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/observability"
)

var (
	classifyPagesDocumentID string
	classifyPagesForce      bool
)

var classifyPagesCmd = &cobra.Command{
	Use:   "classify-pages",
	Short: "Assign a page type to every parsed page",
	Long:  "Classifies each page of a document's latest parse against the catalog's page types. Results are persisted; rerun with --force to reclassify.",
	RunE:  runClassifyPages,
}

func init() {
	classifyPagesCmd.Flags().StringVarP(&classifyPagesDocumentID, "document", "d", "", "Document ID (required)")
	classifyPagesCmd.Flags().BoolVar(&classifyPagesForce, "force", false, "Discard existing classifications first")

	if err := classifyPagesCmd.MarkFlagRequired("document"); err != nil {
		panic(fmt.Sprintf("failed to mark document flag as required: %v", err))
	}

	rootCmd.AddCommand(classifyPagesCmd)
}

func runClassifyPages(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(classifyPagesDocumentID)
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

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

	client, err := llm.NewClient(ctx, modelConfig(cfg), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	classifier := classify.New(client, database, registry.Catalog())
	classifications, usage, err := classifier.EnsurePageClassifications(ctx, parse.ID, chunks, parse.PageCount, classifyPagesForce)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	observability.NewPrinter(os.Stdout).PrintClassifications(classifications)
	fmt.Fprintf(os.Stdout, "Tokens: %d in, %d out\n", usage.InputTokens, usage.OutputTokens)
	return nil
}
