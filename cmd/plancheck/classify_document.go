package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/classify"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/llm"
)

var classifyDocumentID string

var classifyDocumentCmd = &cobra.Command{
	Use:   "classify-document",
	Short: "Assign a document type to a whole document",
	Long:  "Classifies a document against the catalog's document types from its leading parsed content and records the result on the document.",
	RunE:  runClassifyDocument,
}

func init() {
	classifyDocumentCmd.Flags().StringVarP(&classifyDocumentID, "document", "d", "", "Document ID (required)")

	if err := classifyDocumentCmd.MarkFlagRequired("document"); err != nil {
		panic(fmt.Sprintf("failed to mark document flag as required: %v", err))
	}

	rootCmd.AddCommand(classifyDocumentCmd)
}

func runClassifyDocument(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(classifyDocumentID)
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

	var parts []string
	for _, chunk := range chunks {
		parts = append(parts, chunk.Markdown)
	}
	content := strings.Join(parts, "\n\n")

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
	result, err := classifier.ClassifyDocument(ctx, content)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	err = database.UpdateDocumentClassification(ctx, documentID, result.DocumentType, result.Confidence, result.Signals, result.Model)
	if err != nil {
		return fmt.Errorf("failed to record classification: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Document type: %s (confidence %d)\n", result.DocumentType, result.Confidence)
	if len(result.Signals) > 0 {
		fmt.Fprintf(os.Stdout, "Signals: %s\n", strings.Join(result.Signals, ", "))
	}
	return nil
}
