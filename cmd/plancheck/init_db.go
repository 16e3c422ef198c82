package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/db"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database schema",
	Long:  "Connects to the configured PostgreSQL database and applies the embedded schema. Safe to run repeatedly.",
	RunE:  runInitDB,
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}

func runInitDB(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	fmt.Fprintln(os.Stdout, "Database schema initialized")
	return nil
}
