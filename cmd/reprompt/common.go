package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/reprompt/internal/adapters/embedding"
	"github.com/longregen/reprompt/internal/adapters/generative"
	"github.com/longregen/reprompt/internal/adapters/id"
	"github.com/longregen/reprompt/internal/adapters/logging"
	"github.com/longregen/reprompt/internal/adapters/memory"
	"github.com/longregen/reprompt/internal/adapters/metrics"
	"github.com/longregen/reprompt/internal/adapters/postgres"
	"github.com/longregen/reprompt/internal/adapters/refusal"
	"github.com/longregen/reprompt/internal/adapters/storage"
	"github.com/longregen/reprompt/internal/adapters/tracing"
	"github.com/longregen/reprompt/internal/application/services"
	"github.com/longregen/reprompt/internal/config"
	"github.com/longregen/reprompt/internal/llm"
	"github.com/longregen/reprompt/internal/ports"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables, populated by the root PersistentPreRunE
var (
	cfg    *config.Config
	logger *logging.Logger
)

// app is the wired object graph shared by run and serve.
type app struct {
	runs      *services.RunManager
	repo      ports.RunRepository
	pool      *pgxpool.Pool
	embedder  *embedding.Client
	llmClient *llm.Client
	shutdown  []func(context.Context) error
}

// newApp wires adapters and services from cfg.
func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	if cfg.Tracing.Enabled {
		shutdownTracer, err := tracing.InitTracer("reprompt")
		if err != nil {
			logger.Warn("failed to initialize tracing", map[string]any{"error": err.Error()})
		} else {
			a.shutdown = append(a.shutdown, shutdownTracer)
		}
	}

	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.repo = repo

	a.llmClient = llm.NewClient(
		cfg.LLM.URL,
		cfg.LLM.APIKey,
		llm.WithVisionModel(cfg.LLM.VisionModel),
		llm.WithImageModel(cfg.LLM.ImageModel),
		llm.WithImageSize(cfg.LLM.ImageSize),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(float32(cfg.LLM.Temperature)),
		llm.WithTimeout(cfg.LLM.Timeout.Std()),
	)

	a.embedder = embedding.NewClient(
		cfg.Embedding.URL,
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		cfg.Embedding.Dimensions,
	)

	classifier := refusal.New()
	var gen ports.GenerativeService = generative.NewService(
		a.llmClient,
		a.embedder,
		generative.WithClassifier(classifier),
		generative.WithCallTimeout(cfg.LLM.Timeout.Std()),
	)
	gen = generative.NewThrottled(gen, cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst, cfg.Throttle.MaxConcurrency)

	sinks := storage.NewFactory(storage.S3Config{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.UsePathStyle,
	})

	ids := id.New()
	search := services.NewSearchService(gen, classifier, sinks, ids, logger).
		WithMetrics(metrics.NewSearchRecorder())
	a.runs = services.NewRunManager(search, a.repo, ids, logger)

	return a, nil
}

// openRepository archives runs in PostgreSQL when configured, in memory otherwise.
func (a *app) openRepository(ctx context.Context) (ports.RunRepository, error) {
	if !cfg.IsPostgresConfigured() {
		logger.Info("no postgres_url configured, archiving runs in memory", nil)
		return memory.NewRunRepository(), nil
	}

	pool, err := postgres.Connect(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	a.pool = pool
	logger.Info("database connection established", nil)
	return postgres.NewRunRepository(pool), nil
}

// Close waits for in-flight runs and releases resources.
func (a *app) Close(ctx context.Context) {
	if a.runs != nil {
		a.runs.Wait()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	for _, fn := range a.shutdown {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := fn(shutdownCtx); err != nil {
			logger.Warn("shutdown hook failed", map[string]any{"error": err.Error()})
		}
		cancel()
	}
}

// openArchive opens only the run archive, for browsing commands.
func openArchive(ctx context.Context) (ports.RunRepository, func(), error) {
	a := &app{}
	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { a.Close(ctx) }, nil
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
