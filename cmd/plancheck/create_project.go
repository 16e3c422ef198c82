package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/db"
)

var (
	createProjectName        string
	createProjectDescription string
)

var createProjectCmd = &cobra.Command{
	Use:   "create-project",
	Short: "Create a project to hold documents",
	RunE:  runCreateProject,
}

func init() {
	createProjectCmd.Flags().StringVarP(&createProjectName, "name", "n", "", "Project name (required)")
	createProjectCmd.Flags().StringVarP(&createProjectDescription, "description", "d", "", "Project description")

	if err := createProjectCmd.MarkFlagRequired("name"); err != nil {
		panic(fmt.Sprintf("failed to mark name flag as required: %v", err))
	}

	rootCmd.AddCommand(createProjectCmd)
}

func runCreateProject(_ *cobra.Command, _ []string) error {
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

	project, err := database.CreateProject(ctx, createProjectName, createProjectDescription)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Created project %s (%s)\n", project.Name, project.ID)
	return nil
}
