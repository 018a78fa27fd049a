package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// runsCmd groups the archive browsing commands
func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse archived search runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived search runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, closeFn, err := openArchive(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := repo.List(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No search runs found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tREFS\tITERATIONS\tBEST SCORE\tSTOP\tCREATED")
			fmt.Fprintln(w, "--\t------\t----\t----------\t----------\t----\t-------")

			for _, run := range runs {
				score, stop, iterations := "N/A", "-", "-"
				if run.Result != nil {
					score = fmt.Sprintf("%.4f", run.Result.BestScore)
					stop = string(run.Result.StopReason)
					iterations = fmt.Sprintf("%d/%d", len(run.Result.Iterations), run.Config.MaxIterations)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					run.ID,
					run.Status,
					len(run.References),
					iterations,
					score,
					stop,
					run.CreatedAt.Format("2006-01-02 15:04"),
				)
			}

			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")

	return cmd
}

func runsShowCmd() *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived search run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, closeFn, err := openArchive(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := repo.GetByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if showJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			printRun(cmd.OutOrStdout(), run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Print the archived run as JSON")

	return cmd
}
