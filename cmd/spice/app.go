package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-import/internal/categorize"
	"github.com/Veraticus/spice-import/internal/classification"
	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/config"
	"github.com/Veraticus/spice-import/internal/dedupe"
	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/learning"
	"github.com/Veraticus/spice-import/internal/llm"
	"github.com/Veraticus/spice-import/internal/modelstore"
	"github.com/Veraticus/spice-import/internal/parser"
	"github.com/Veraticus/spice-import/internal/storage"
	"github.com/Veraticus/spice-import/internal/validation"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg          *config.Config
	store        *storage.SQLiteStorage
	rules        *classification.Rules
	providers    *llm.Factory
	models       *modelstore.Manager
	learner      *learning.UseCase
	engine       *categorize.Engine
	orchestrator *importer.Orchestrator
	parser       *parser.Parser
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	if err := config.EnsureParentDir(cfg.Database.Path); err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// newApp wires storage, providers, the categorization engine and the import orchestrator.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		store:  store,
		rules:  classification.NewDefaultRules(),
		models: modelstore.NewManager(store, cfg.Models.Dir),
	}
	a.providers = llm.NewFactory(slog.Default(), buildProviders(ctx, cfg, store)...)
	a.parser = parser.New(parser.NewEnhancer(a.rules), slog.Default())

	a.learner = learning.New(store, learning.WithThreshold(cfg.Learning.MappingThreshold))
	a.engine = categorize.New(store, a.rules, a.providers, categorize.WithOptions(categorize.Options{
		Tier2MinConfidence:    cfg.Categorize.Tier2MinConfidence,
		OnDeviceMinConfidence: cfg.Categorize.OnDeviceMinConfidence,
		HistoryConfidence:     cfg.Categorize.HistoryConfidence,
		BatchSize:             cfg.Categorize.BatchSize,
		Concurrency:           cfg.Categorize.Concurrency,
	}))
	a.orchestrator = importer.New(store, a.engine,
		importer.WithLearner(a.learner),
		importer.WithValidator(validation.NewValidator(common.SystemClock{}, cfg.Import.LargeAmountThreshold)),
		importer.WithDetector(dedupe.NewDetector(dedupe.Options{
			ProbableThreshold: cfg.Dedupe.ProbableThreshold,
			MaxDayDistance:    cfg.Dedupe.MaxDayDistance,
		})),
	)
	return a, nil
}

// buildProviders registers every provider the configuration enables. Providers that fail to
// initialize are logged and skipped so the local tiers keep working.
func buildProviders(ctx context.Context, cfg *config.Config, models llm.ModelSource) []llm.Provider {
	var providers []llm.Provider

	if engine, err := llm.NewExecEngine(cfg.LLM.OnDevice.CLIPath,
		llm.WithThreads(cfg.LLM.OnDevice.Threads),
		llm.WithTimeout(cfg.LLM.OnDevice.Timeout),
	); err != nil {
		common.LogDebug("On-device inference disabled", common.Fields{"cli": cfg.LLM.OnDevice.CLIPath, "error": err.Error()})
	} else {
		providers = append(providers, llm.NewOnDeviceProvider(engine, models, slog.Default()))
	}

	cloud := []struct {
		build func(llm.Config) (llm.Provider, error)
		name  string
		pc    config.ProviderConfig
	}{
		{name: "openai", pc: cfg.LLM.OpenAI, build: func(c llm.Config) (llm.Provider, error) { return asProvider(llm.NewOpenAIProvider(c)) }},
		{name: "anthropic", pc: cfg.LLM.Anthropic, build: func(c llm.Config) (llm.Provider, error) { return asProvider(llm.NewAnthropicProvider(c)) }},
		{name: "gemini", pc: cfg.LLM.Gemini, build: func(c llm.Config) (llm.Provider, error) { return asProvider(llm.NewGeminiProvider(ctx, c)) }},
	}
	for _, c := range cloud {
		if !c.pc.Enabled() {
			continue
		}
		p, err := c.build(llm.Config{
			APIKey:            c.pc.APIKey,
			Model:             c.pc.Model,
			BaseURL:           c.pc.BaseURL,
			RequestsPerMinute: c.pc.RequestsPerMinute,
			MaxRetries:        c.pc.MaxRetries,
			Timeout:           c.pc.Timeout,
			QuotaCooldown:     cfg.LLM.QuotaCooldown,
		})
		if err != nil {
			slog.Warn("Skipping provider", "provider", c.name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	return providers
}

// asProvider converts a typed constructor result without wrapping a nil pointer in the interface.
func asProvider[P llm.Provider](p P, err error) (llm.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *app) Close() {
	for _, p := range a.providers.Providers() {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
	}
	if err := a.store.Close(); err != nil {
		common.LogError(err, "Failed to close database", common.Fields{"path": a.store.Path()})
	}
}
