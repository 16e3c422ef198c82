package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/observability"
	"github.com/planwise/plancheck/internal/run"
)

var (
	runChecksDocumentID      string
	runChecksForceReclassify bool
	runChecksJSON            bool
)

var runChecksCmd = &cobra.Command{
	Use:   "run-checks",
	Short: "Run the full check pipeline for one document",
	Long:  "Classifies the document's pages if needed, batches them by page type, evaluates every applicable check, and records the verdicts as a new numbered run.",
	RunE:  runRunChecks,
}

func init() {
	runChecksCmd.Flags().StringVarP(&runChecksDocumentID, "document", "d", "", "Document ID (required)")
	runChecksCmd.Flags().BoolVar(&runChecksForceReclassify, "force-reclassify", false, "Discard existing page classifications first")
	runChecksCmd.Flags().BoolVar(&runChecksJSON, "json", false, "Print the full result as JSON")

	if err := runChecksCmd.MarkFlagRequired("document"); err != nil {
		panic(fmt.Sprintf("failed to mark document flag as required: %v", err))
	}

	rootCmd.AddCommand(runChecksCmd)
}

func runRunChecks(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(runChecksDocumentID)
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

	llmCfg := modelConfig(cfg)

	// Project settings may pin a specific model for evaluation.
	settings, err := database.GetProjectSettings(ctx, doc.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project settings: %w", err)
	}
	if settings != nil && settings.ComplianceModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierStandard, settings.ComplianceModel)
	}

	registry, err := openCatalog(cfg)
	if err != nil {
		return err
	}

	aggregator, client, err := newAggregator(ctx, cfg, llmCfg, database, registry.Catalog())
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := aggregator.Run(ctx, documentID, run.Options{ForceReclassify: runChecksForceReclassify})
	if err != nil {
		return fmt.Errorf("check run failed: %w", err)
	}

	if runChecksJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	observability.NewPrinter(os.Stdout).PrintCheckResult(result)
	return nil
}
