package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/blob"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/vision"
)

var parseDocumentID string

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract page content from a document",
	Long:  "Sends the stored document to the vision model, records the extracted markdown chunks, and archives the raw parse output in the blob store.",
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&parseDocumentID, "document", "d", "", "Document ID (required)")

	if err := parseCmd.MarkFlagRequired("document"); err != nil {
		panic(fmt.Sprintf("failed to mark document flag as required: %v", err))
	}

	rootCmd.AddCommand(parseCmd)
}

func runParse(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(parseDocumentID)
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	parser, err := vision.NewGeminiParser(ctx, modelConfig(cfg), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}
	defer parser.Close()

	service := vision.NewService(parser, database, blobs)
	result, err := service.ParseDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Parsed document %s: %d pages, %d chunks (model %s)\n",
		documentID, result.PageCount, result.ChunkCount, result.Model)
	return nil
}
