package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/server"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  "Start an HTTP server that exposes document upload, parsing, check runs and batch orchestration as REST endpoints.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}

	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
