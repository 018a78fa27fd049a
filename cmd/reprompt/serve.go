package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/longregen/reprompt/internal/adapters/http"
	"github.com/longregen/reprompt/internal/adapters/http/handlers"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the reprompt HTTP API.

Searches submitted to POST /api/v1/searches run in the background and are
archived in PostgreSQL (REPROMPT_POSTGRES_URL) or, without a database, in
memory for the lifetime of the process.

On SIGINT or SIGTERM the server stops accepting requests and waits for
in-flight searches to finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// runServer initializes and starts the HTTP API server
func runServer(ctx context.Context) error {
	logger.Info("starting reprompt API server", map[string]any{
		"host":      cfg.Server.Host,
		"port":      cfg.Server.Port,
		"llm_url":   cfg.LLM.URL,
		"postgres":  cfg.IsPostgresConfigured(),
		"tracing":   cfg.Tracing.Enabled,
		"streams":   cfg.Search.StreamCount,
		"threshold": cfg.Search.SimilarityThreshold,
	})

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	health := handlers.NewHealthHandler(version).
		WithCheck("embedding", false, func(ctx context.Context) error {
			_, err := a.embedder.Embed(ctx, "health check")
			return err
		})
	if a.pool != nil {
		health.WithCheck("database", true, a.pool.Ping)
	}

	server := httpadapter.NewServer(cfg.Server, a.runs, cfg.SearchDefaults(), health, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", map[string]any{"signal": sig.String()})

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("waiting for in-flight searches", nil)
		a.runs.Wait()
		logger.Info("server stopped", nil)
		return nil
	}
}
