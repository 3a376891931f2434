package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/classify-cli/internal/classifier"
	"github.com/sells-group/classify-cli/internal/cost"
	"github.com/sells-group/classify-cli/internal/engine"
	"github.com/sells-group/classify-cli/internal/fallback"
	"github.com/sells-group/classify-cli/internal/job"
	"github.com/sells-group/classify-cli/internal/model"
	"github.com/sells-group/classify-cli/internal/output"
	"github.com/sells-group/classify-cli/internal/store"
	"github.com/sells-group/classify-cli/internal/taxonomy"
	anthropicpkg "github.com/sells-group/classify-cli/pkg/anthropic"
	"github.com/sells-group/classify-cli/pkg/perplexity"
)

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// loadTaxonomy reads the taxonomy file, picking the loader by extension.
func loadTaxonomy(path string) (*taxonomy.Tree, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return taxonomy.LoadYAML(path)
	default:
		return taxonomy.LoadXLSX(path)
	}
}

// buildOrchestrator wires API clients, engine, fallback and output sink
// into a ready orchestrator over the given store and taxonomy.
func buildOrchestrator(st store.Store, tree *taxonomy.Tree) (*job.Orchestrator, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	llm := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithModel(cfg.Anthropic.Model),
		anthropicpkg.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
		anthropicpkg.WithTimeout(cfg.Anthropic.Timeout()),
		anthropicpkg.WithRateLimit(cfg.Anthropic.RequestsPerSec),
	)
	searchClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
		perplexity.WithTimeout(cfg.Perplexity.Timeout()),
	)

	cls := classifier.New(llm, cfg.Classify.BatchSize)
	resolver := fallback.New(searchClient, cls,
		fallback.WithMaxSources(cfg.Search.MaxSources),
		fallback.WithSnippetLength(cfg.Search.SnippetLength),
	)

	newEngine := func(acc *model.UsageAccumulator, onLevel func(int)) job.EngineRunner {
		return engine.New(cls, tree,
			engine.WithMaxConcurrentBatches(cfg.Classify.MaxConcurrentBatches),
			engine.WithUsage(acc),
			engine.WithLevelHook(onLevel),
		)
	}

	sink := func(jobID string, rows []model.OutputRow) (string, error) {
		return output.WriteResults(cfg.Output.Dir, jobID, format, rows)
	}

	return job.NewOrchestrator(st, tree, newEngine, resolver, sink,
		job.WithCostCalculator(cost.NewCalculator(cost.DefaultRates()), cfg.Anthropic.Model),
		job.WithMaxConcurrentSearches(cfg.Classify.MaxConcurrentBatches),
	), nil
}
