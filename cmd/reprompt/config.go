package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			source := cfg.Path()
			if source == "" {
				source = "(defaults and environment)"
			}
			fmt.Fprintf(out, "Current configuration from %s:\n\n", source)

			fmt.Fprintln(out, "Search:")
			fmt.Fprintf(out, "  Max Iterations: %d\n", cfg.Search.MaxIterations)
			fmt.Fprintf(out, "  Threshold:      %.3f\n", cfg.Search.SimilarityThreshold)
			fmt.Fprintf(out, "  Streams:        %d\n", cfg.Search.StreamCount)
			fmt.Fprintf(out, "  Output:         %s\n", orNone(cfg.Search.OutputLocation))
			fmt.Fprintf(out, "  Diversify:      %t\n", cfg.Search.DiversifySeeds)
			fmt.Fprintf(out, "  Call Timeout:   %s\n", cfg.Search.CallTimeout)
			fmt.Fprintf(out, "  Rerank Max:     %d\n", cfg.Search.RerankMax)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "LLM:")
			fmt.Fprintf(out, "  URL:          %s\n", cfg.LLM.URL)
			fmt.Fprintf(out, "  Vision Model: %s\n", cfg.LLM.VisionModel)
			fmt.Fprintf(out, "  Image Model:  %s (%s)\n", cfg.LLM.ImageModel, cfg.LLM.ImageSize)
			fmt.Fprintf(out, "  Max Tokens:   %d\n", cfg.LLM.MaxTokens)
			fmt.Fprintf(out, "  Temperature:  %.2f\n", cfg.LLM.Temperature)
			fmt.Fprintf(out, "  Timeout:      %s\n", cfg.LLM.Timeout)
			fmt.Fprintf(out, "  API Key:      %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Embedding:")
			fmt.Fprintf(out, "  URL:        %s\n", cfg.Embedding.URL)
			fmt.Fprintf(out, "  Model:      %s\n", cfg.Embedding.Model)
			fmt.Fprintf(out, "  Dimensions: %d\n", cfg.Embedding.Dimensions)
			fmt.Fprintf(out, "  API Key:    %s\n", maskSecret(cfg.Embedding.APIKey))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Throttle:")
			fmt.Fprintf(out, "  Requests/s:  %.2f (burst %d)\n", cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst)
			fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Throttle.MaxConcurrency)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Server:")
			fmt.Fprintf(out, "  Address:        %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Fprintf(out, "  CORS:           %s\n", strings.Join(cfg.Server.CORSOrigins, ", "))
			fmt.Fprintf(out, "  Reference Root: %s\n", orNone(cfg.Server.ReferenceRoot))
			fmt.Fprintf(out, "  Output Root:    %s\n", orNone(cfg.Server.OutputRoot))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Storage:")
			fmt.Fprintf(out, "  PostgreSQL:  %s\n", maskSecret(cfg.Database.PostgresURL))
			fmt.Fprintf(out, "  S3 Region:   %s\n", orNone(cfg.S3.Region))
			fmt.Fprintf(out, "  S3 Endpoint: %s\n", orNone(cfg.S3.Endpoint))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Observability:")
			fmt.Fprintf(out, "  Log Level:  %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
			fmt.Fprintf(out, "  Tracing:    %t\n", cfg.Tracing.Enabled)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Environment variables:")
			fmt.Fprintln(out, "  REPROMPT_CONFIG, REPROMPT_SEARCH_*, REPROMPT_LLM_*, REPROMPT_EMBEDDING_*")
			fmt.Fprintln(out, "  REPROMPT_THROTTLE_*, REPROMPT_SERVER_*, REPROMPT_POSTGRES_URL, REPROMPT_S3_*")
			fmt.Fprintln(out, "  REPROMPT_LOG_LEVEL, REPROMPT_LOG_FORMAT, REPROMPT_TRACING_ENABLED, OPENAI_API_KEY")

			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
