// Package main provides the plancheck CLI: document compliance checks for
// permit drawing sets, runnable as single commands or as an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "plancheck",
	Short: "Automated compliance checks for construction document sets",
	Long:  "Plancheck parses permit drawing sets, classifies their pages, and evaluates completeness and compliance checks against a configurable rule catalog.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (environment variables win)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print result summaries to stdout")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
