package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/longregen/reprompt/internal/adapters/http/encoding"
	"github.com/longregen/reprompt/internal/domain/models"
)

type runOptions struct {
	iterations int
	threshold  float64
	streams    int
	output     string
	diversify  bool
	traceOut   string
}

// runCmd runs one search in the foreground
func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <reference>...",
		Short: "Search for a prompt that reproduces the reference images",
		Long: `Run a search synchronously and print a summary.

References are local image paths or http(s) URLs. The first reference
seeds the initial prompt; every reference is used for scoring.

Examples:
  reprompt run photo.png
  reprompt run a.png b.png --streams 4 --iterations 8 --output s3://bucket/runs
  reprompt run photo.png --trace-out trace.msgpack`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 0, "Maximum iterations (default from config)")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0, "Similarity threshold in [0,1] (default from config)")
	cmd.Flags().IntVarP(&opts.streams, "streams", "s", 0, "Number of parallel streams (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Artifact location: directory, file://dir or s3://bucket/prefix")
	cmd.Flags().BoolVar(&opts.diversify, "diversify", false, "Describe the first reference once per stream")
	cmd.Flags().StringVar(&opts.traceOut, "trace-out", "", "Write the full result to a file (.msgpack, otherwise JSON)")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string, opts runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	searchCfg := cfg.SearchDefaults()
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		searchCfg.MaxIterations = opts.iterations
	}
	if flags.Changed("threshold") {
		searchCfg.SimilarityThreshold = opts.threshold
	}
	if flags.Changed("streams") {
		searchCfg.StreamCount = opts.streams
	}
	if flags.Changed("output") {
		searchCfg.OutputLocation = opts.output
	}
	if flags.Changed("diversify") {
		searchCfg.DiversifySeeds = opts.diversify
	}
	if searchCfg.OutputLocation == "" {
		logger.Warn("no output location set, generated images will not be kept", nil)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	run, err := a.runs.Execute(ctx, models.NewReferenceSet(args...), searchCfg)
	if err != nil {
		return err
	}

	printRun(cmd.OutOrStdout(), run)

	if opts.traceOut != "" && run.Result != nil {
		if err := writeTrace(opts.traceOut, run.Result); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nTrace written to %s\n", opts.traceOut)
	}

	if run.Status == models.RunStatusFailed {
		return fmt.Errorf("search failed: %s", run.Error)
	}
	return nil
}

// writeTrace stores the result as MessagePack for .msgpack/.mpk paths and as indented JSON otherwise.
func writeTrace(path string, result *models.RunResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		err = encoding.Encode(f, result)
	default:
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(result)
	}
	if err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return f.Close()
}

// printRun renders a run summary with its final evaluations table.
func printRun(out io.Writer, run *models.SearchRun) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "\n%s\n", cyan("=== Search "+run.ID+" ==="))
	status := string(run.Status)
	switch run.Status {
	case models.RunStatusCompleted:
		status = green(status)
	case models.RunStatusFailed:
		status = red(status)
	default:
		status = yellow(status)
	}
	fmt.Fprintf(out, "Status:     %s\n", status)
	fmt.Fprintf(out, "References: %s\n", strings.Join(run.References.Paths(), ", "))
	if run.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", red(run.Error))
	}

	res := run.Result
	if res == nil {
		fmt.Fprintf(out, "%s\n", gray("No result yet"))
		return
	}

	scoreColor := yellow
	if res.StopReason == models.StopConverged {
		scoreColor = green
	}
	fmt.Fprintf(out, "Stopped:    %s after %d iteration(s), %d candidate(s)\n", res.StopReason, len(res.Iterations), res.CandidateCount)
	fmt.Fprintf(out, "Duration:   %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "\n%s\n%s\n", bold("Initial prompt:"), res.InitialPrompt)

	if !res.HasCandidate() {
		fmt.Fprintf(out, "\n%s\n", red("No candidate was produced"))
		return
	}
	fmt.Fprintf(out, "\n%s %s\n%s\n", bold("Best prompt"), scoreColor(fmt.Sprintf("(%.4f)", res.BestScore)), res.BestPrompt)
	if ref := res.BestArtifact.Ref(); ref != "" {
		fmt.Fprintf(out, "Image:      %s\n", ref)
	}

	if len(res.FinalEvaluations) == 0 {
		return
	}

	fmt.Fprintf(out, "\n%s\n", bold("Final evaluations:"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSTREAM\tITER\tLOOP SCORE\tAVG SCORE\tSCORED\tPROMPT")
	fmt.Fprintln(w, "----\t------\t----\t----------\t---------\t------\t------")
	for i, f := range res.FinalEvaluations {
		scored := 0
		for _, s := range f.Scores {
			if s.Error == "" {
				scored++
			}
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%.4f\t%.4f\t%d/%d\t%s\n",
			i+1,
			f.Stream,
			f.Iteration,
			f.InIterationScore,
			f.AverageScore,
			scored,
			len(f.Scores),
			truncate(f.Prompt, 60),
		)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
