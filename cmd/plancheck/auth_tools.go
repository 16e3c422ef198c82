package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planwise/plancheck/internal/config"
	"github.com/planwise/plancheck/internal/server"
)

var hashKeyValue string

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Hash a service key for SERVICE_KEY_HASH",
	Long:  "Prints the bcrypt hash of a service key. Set the hash as SERVICE_KEY_HASH on the server; clients exchange the plaintext key for API tokens at /auth/token.",
	RunE:  runHashKey,
}

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token directly",
	Long:  "Signs an API token with the configured JWT_SECRET, bypassing the /auth/token exchange. Useful for scripts running next to the server.",
	RunE:  runToken,
}

func init() {
	hashKeyCmd.Flags().StringVarP(&hashKeyValue, "key", "k", "", "Service key to hash (required)")
	if err := hashKeyCmd.MarkFlagRequired("key"); err != nil {
		panic(fmt.Sprintf("failed to mark key flag as required: %v", err))
	}

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Subject UUID for the token (default: random)")

	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runHashKey(_ *cobra.Command, _ []string) error {
	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return fmt.Errorf("failed to create password config: %w", err)
	}

	hash, err := passwords.HashPassword(hashKeyValue)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	fmt.Fprintln(os.Stdout, hash)
	return nil
}

func runToken(_ *cobra.Command, _ []string) error {
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	subject := uuid.New()
	if tokenSubject != "" {
		subject, err = uuid.Parse(tokenSubject)
		if err != nil {
			return fmt.Errorf("invalid subject: %w", err)
		}
	}

	token, err := server.NewJWTService(jwtConfig).GenerateToken(subject)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Fprintln(os.Stdout, token)
	return nil
}
