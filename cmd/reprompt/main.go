package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longregen/reprompt/internal/adapters/logging"
	"github.com/longregen/reprompt/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "reprompt",
		Short: "reprompt - find the prompt behind an image",
		Long: `reprompt searches for a text prompt that makes an image generator
reproduce a set of reference images. Several refinement streams run in
parallel; each one describes, generates, scores and refines until a
stream reaches the similarity threshold or the iteration budget runs out.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err = logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: logging.Format(cfg.Logging.Format),
			})
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file (default $REPROMPT_CONFIG or ~/.config/reprompt/config.json)")

	rootCmd.AddCommand(
		runCmd(),
		serveCmd(),
		runsCmd(),
		configCmd(),
		versionCmd(),
	)

	return rootCmd
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reprompt %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Build Date: %s\n", buildDate)
		},
	}
}
