package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"review-insights/internal/analyzer"
)

func newAnalyzeCmd(open opener, opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "analyze <external_place_id>",
		Short: "Show the backlog of a place, then analyze its pending reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, opts, func(ctx context.Context, e *env) error {
				out := cmd.OutOrStdout()
				d, err := e.Analyzer.Diagnose(ctx, args[0])
				if err != nil {
					return err
				}
				if !opts.asJSON {
					printDiagnosis(out, d)
				}
				if d.Unanalyzed == 0 {
					if opts.asJSON {
						return printJSON(out, map[string]any{"diagnosis": d})
					}
					fmt.Fprintln(out, "nothing to analyze")
					return nil
				}
				sum, err := e.Analyzer.Run(ctx, analyzer.Input{ExternalPlaceID: args[0], Limit: limit})
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(out, map[string]any{"diagnosis": d, "summary": sum})
				}
				printSummary(out, sum)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum reviews to analyze (default from ANALYZE_DEFAULT_LIMIT)")
	return cmd
}

func newReanalyzeCmd(open opener, opts *options) *cobra.Command {
	var (
		limit     int
		reviewIDs []string
	)
	cmd := &cobra.Command{
		Use:   "reanalyze <external_place_id>",
		Short: "Clear existing analysis and analyze the reviews again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, opts, func(ctx context.Context, e *env) error {
				out := cmd.OutOrStdout()
				n, err := e.Analyzer.ResetAnalysis(ctx, args[0], reviewIDs)
				if err != nil {
					return err
				}
				if !opts.asJSON {
					fmt.Fprintf(out, "reset %d reviews\n", n)
				}
				sum, err := e.Analyzer.Run(ctx, analyzer.Input{ExternalPlaceID: args[0], Limit: limit, ReviewIDs: reviewIDs})
				if err != nil {
					return err
				}
				if opts.asJSON {
					return printJSON(out, map[string]any{"reset": n, "summary": sum})
				}
				printSummary(out, sum)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum reviews to analyze")
	cmd.Flags().StringSliceVar(&reviewIDs, "review-id", nil, "Restrict to these review ids (repeatable)")
	return cmd
}

func printDiagnosis(w io.Writer, d *analyzer.Diagnosis) {
	fmt.Fprintln(w, d.String())
	for _, s := range d.Sample {
		fmt.Fprintf(w, "  %s  %-11s %5d chars\n", s.ID, s.Provider, s.TextLength)
	}
	if d.LastRun != nil {
		fmt.Fprintf(w, "last run %s: %d analyzed, %d failed batches\n", d.LastRun.LastRunID, d.LastRun.LastAnalyzed, d.LastRun.LastFailedBatches)
	}
}

func printSummary(w io.Writer, s *analyzer.Summary) {
	fmt.Fprintf(w, "run %s: analyzed %d of %d in %d batches (%d failed)\n",
		s.RunID, s.Analyzed, s.TotalReviewsFound, s.Batches, s.FailedBatches)
	for _, p := range s.ProcessedReviews {
		fmt.Fprintf(w, "  %s  %-8s score %.2f  aspects %d\n", p.ReviewID, p.Sentiment, p.OverallScore, p.AspectsCount)
	}
	if len(s.UnprocessedReviewIDs) > 0 {
		fmt.Fprintf(w, "unprocessed: %s\n", strings.Join(s.UnprocessedReviewIDs, ", "))
	}
	fmt.Fprintf(w, "tokens %d/%d, %d requests, $%.4f\n",
		s.Usage.PromptTokens, s.Usage.CompletionTokens, s.Usage.Requests, s.Usage.CostUSD)
}
