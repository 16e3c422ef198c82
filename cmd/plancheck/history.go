package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/observability"
)

var (
	historyDocumentID string
	historyLatest     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a document's check run history",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyDocumentID, "document", "d", "", "Document ID (required)")
	historyCmd.Flags().BoolVar(&historyLatest, "latest", false, "Show the full latest result instead of the run list")

	if err := historyCmd.MarkFlagRequired("document"); err != nil {
		panic(fmt.Sprintf("failed to mark document flag as required: %v", err))
	}

	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, err := uuid.Parse(historyDocumentID)
	if err != nil {
		return fmt.Errorf("invalid document ID: %w", err)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if historyLatest {
		result, err := database.LatestCheckResult(ctx, documentID)
		if err != nil {
			return fmt.Errorf("failed to load latest result: %w", err)
		}
		if result == nil {
			return fmt.Errorf("document %s has no check results", documentID)
		}
		observability.NewPrinter(os.Stdout).PrintCheckResult(result)
		return nil
	}

	results, err := database.ListCheckHistory(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stdout, "No check results")
		return nil
	}

	for _, r := range results {
		fmt.Fprintf(os.Stdout, "Run %d  %s  passed=%d failed=%d needs_review=%d  (%s)\n",
			r.RunNumber, r.CreatedAt.Format("2006-01-02 15:04"),
			r.Summary.Passed, r.Summary.Failed, r.Summary.NeedsReview, r.ID)
	}
	return nil
}
