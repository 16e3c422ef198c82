package main

import (
	"context"
	"fmt"

	"github.com/planwise/plancheck/internal/batching"
	"github.com/planwise/plancheck/internal/catalog"
	"github.com/planwise/plancheck/internal/checks"
	"github.com/planwise/plancheck/internal/classify"
	"github.com/planwise/plancheck/internal/config"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/run"
)

// loadConfig resolves configuration from the --config file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// modelConfig applies per-tier model overrides from configuration.
func modelConfig(cfg *config.Config) *llm.Config {
	llmCfg := llm.DefaultConfig()
	if cfg.ClassifyModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierLite, cfg.ClassifyModel)
	}
	if cfg.CheckModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierStandard, cfg.CheckModel)
	}
	if cfg.ParseModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierAdvanced, cfg.ParseModel)
	}
	return llmCfg
}

// openCatalog loads the rule catalog named by configuration, or the embedded
// default.
func openCatalog(cfg *config.Config) (*catalog.Registry, error) {
	registry, err := catalog.NewRegistry(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return registry, nil
}

// newAggregator wires the full check pipeline for one-shot commands. The
// caller owns closing the returned client.
func newAggregator(ctx context.Context, cfg *config.Config, llmCfg *llm.Config, database *db.DB, cat *catalog.Catalog) (*run.Aggregator, llm.Client, error) {
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	classifier := classify.New(client, database, cat)
	evaluator := checks.NewEvaluator(client)
	planner := batching.NewPlanner(0)
	aggregator := run.New(database, classifier, evaluator, planner, cat)

	return aggregator, client, nil
}
