package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/blob"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/types"
)

var (
	addDocumentProject string
	addDocumentFile    string
)

var addDocumentCmd = &cobra.Command{
	Use:   "add-document",
	Short: "Store a document file in a project",
	Long:  "Copies a local file into the blob store and records it as a project document, ready for parsing.",
	RunE:  runAddDocument,
}

func init() {
	addDocumentCmd.Flags().StringVarP(&addDocumentProject, "project", "p", "", "Project ID (required)")
	addDocumentCmd.Flags().StringVarP(&addDocumentFile, "file", "f", "", "Path to the document file (required)")

	for _, flag := range []string{"project", "file"} {
		if err := addDocumentCmd.MarkFlagRequired(flag); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", flag, err))
		}
	}

	rootCmd.AddCommand(addDocumentCmd)
}

func runAddDocument(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectID, err := uuid.Parse(addDocumentProject)
	if err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}

	data, err := os.ReadFile(addDocumentFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", addDocumentFile, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("file %s is empty", addDocumentFile)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	project, err := database.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return fmt.Errorf("project %s not found", projectID)
	}

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	filename := filepath.Base(addDocumentFile)
	key := blob.DocumentKey(projectID, uuid.New(), filename)
	if _, err := blobs.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}

	hash := sha256.Sum256(data)
	doc := &types.Document{
		ProjectID:        projectID,
		Filename:         filename,
		OriginalFilename: filename,
		ContentType:      mime.TypeByExtension(filepath.Ext(filename)),
		FileSize:         int64(len(data)),
		FileHash:         hex.EncodeToString(hash[:]),
		BlobKey:          key,
	}
	if err := database.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Added document %s (%s, %d bytes)\n", doc.Filename, doc.ID, doc.FileSize)
	return nil
}
