// Package config provides process configuration for the compliance service:
// environment variables optionally layered over a JSON config file, validated
// before use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config is the resolved process configuration. Environment variables win
// over JSON file values.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `json:"database_url,omitempty" validate:"required"`
	// APIKey is the Gemini API key.
	APIKey string `json:"api_key,omitempty" validate:"required"`

	// BlobDir is the root directory for stored documents and parse output.
	BlobDir string `json:"blob_dir,omitempty" validate:"required"`
	// CatalogPath points at a rule catalog JSON file; empty uses the
	// embedded default catalog.
	CatalogPath string `json:"catalog_path,omitempty"`

	// ListenAddr is the HTTP listen address for serve mode.
	ListenAddr string `json:"listen_addr,omitempty"`

	// ClassifyModel, CheckModel and ParseModel override the per-tier
	// model defaults when set.
	ClassifyModel string `json:"classify_model,omitempty"`
	CheckModel    string `json:"check_model,omitempty"`
	ParseModel    string `json:"parse_model,omitempty"`

	// BatchConcurrency bounds in-flight documents during batch runs.
	BatchConcurrency int `json:"batch_concurrency,omitempty" validate:"gte=0,lte=32"`

	Verbose bool `json:"verbose,omitempty"`
}

var validate = validator.New()

// Load builds the configuration: JSON file first (if path is non-empty), then
// environment overrides, then defaults, then validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(path string) (*Config, error) {
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setIfEnv(&c.DatabaseURL, "DATABASE_URL")
	setIfEnv(&c.APIKey, "GEMINI_API_KEY")
	setIfEnv(&c.BlobDir, "BLOB_DIR")
	setIfEnv(&c.CatalogPath, "CATALOG_PATH")
	setIfEnv(&c.ListenAddr, "LISTEN_ADDR")
	setIfEnv(&c.ClassifyModel, "CLASSIFY_MODEL")
	setIfEnv(&c.CheckModel, "CHECK_MODEL")
	setIfEnv(&c.ParseModel, "PARSE_MODEL")
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.BlobDir == "" {
		c.BlobDir = "./data/blobs"
	}
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
