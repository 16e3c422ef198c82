package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/batchrun"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/observability"
	"github.com/planwise/plancheck/internal/types"
)

var (
	batchChecksProjectID   string
	batchChecksDocumentIDs []string
	batchChecksForceRerun  bool
	batchChecksConcurrency int
)

var batchChecksCmd = &cobra.Command{
	Use:   "batch-checks",
	Short: "Run checks across a whole project",
	Long:  "Starts a supervised batch run over every parsed document in a project and waits for it to finish, printing progress as documents complete.",
	RunE:  runBatchChecks,
}

func init() {
	batchChecksCmd.Flags().StringVarP(&batchChecksProjectID, "project", "p", "", "Project ID (required)")
	batchChecksCmd.Flags().StringSliceVar(&batchChecksDocumentIDs, "documents", nil, "Restrict the run to these document IDs")
	batchChecksCmd.Flags().BoolVar(&batchChecksForceRerun, "force", false, "Re-check documents that already have results")
	batchChecksCmd.Flags().IntVar(&batchChecksConcurrency, "concurrency", 0, "Documents in flight at once (0 uses configuration)")

	if err := batchChecksCmd.MarkFlagRequired("project"); err != nil {
		panic(fmt.Sprintf("failed to mark project flag as required: %v", err))
	}

	rootCmd.AddCommand(batchChecksCmd)
}

func runBatchChecks(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectID, err := uuid.Parse(batchChecksProjectID)
	if err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}

	documentIDs := make([]uuid.UUID, 0, len(batchChecksDocumentIDs))
	for _, raw := range batchChecksDocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid document ID %q: %w", raw, err)
		}
		documentIDs = append(documentIDs, id)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	registry, err := openCatalog(cfg)
	if err != nil {
		return err
	}

	aggregator, client, err := newAggregator(ctx, cfg, modelConfig(cfg), database, registry.Catalog())
	if err != nil {
		return err
	}
	defer client.Close()

	concurrency := batchChecksConcurrency
	if concurrency <= 0 {
		concurrency = cfg.BatchConcurrency
	}

	queue := batchrun.NewQueue(1)
	defer queue.Close()
	orchestrator := batchrun.New(database, aggregator, queue)

	batchRun, err := orchestrator.Start(ctx, batchrun.Options{
		ProjectID:   projectID,
		DocumentIDs: documentIDs,
		ForceRerun:  batchChecksForceRerun,
		Concurrency: concurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to start batch run: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Started batch run %s\n", batchRun.ID)

	final, err := waitForBatchRun(ctx, database, batchRun.ID)
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintBatchRun(final)
	if final.Status == types.BatchFailed {
		return fmt.Errorf("batch run failed: %s", final.ErrorMessage)
	}
	return nil
}

// waitForBatchRun polls until the run reaches a terminal status.
func waitForBatchRun(ctx context.Context, database *db.DB, runID uuid.UUID) (*types.BatchCheckRun, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastDone int
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		batchRun, err := database.GetBatchRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll batch run: %w", err)
		}
		if batchRun == nil {
			return nil, fmt.Errorf("batch run %s disappeared", runID)
		}

		done := batchRun.CompletedDocuments + batchRun.FailedDocuments + batchRun.SkippedDocuments
		if done != lastDone {
			fmt.Fprintf(os.Stdout, "  %d/%d documents processed\n", done, batchRun.TotalDocuments)
			lastDone = done
		}

		if batchRun.Status.Terminal() {
			return batchRun, nil
		}
	}
}
