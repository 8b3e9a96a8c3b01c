package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"review-insights/internal/domain"
	"review-insights/internal/sentiment"
)

// checkRow is one line of `reviewctl check`. Local is the lexicon label for
// English text and empty otherwise.
type checkRow struct {
	domain.LatestReview
	Local string `json:"local_sentiment,omitempty"`
}

func newCheckCmd(open opener, opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the latest reviews with their analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, open, opts, func(ctx context.Context, e *env) error {
				reviews, err := e.Reviews.LatestReviewsCtx(ctx, max(1, limit))
				if err != nil {
					return err
				}
				rows := make([]checkRow, len(reviews))
				for i, r := range reviews {
					rows[i] = checkRow{LatestReview: r}
					if e.Label != nil && sentiment.LooksEnglish(r.ReviewText) {
						rows[i].Local = e.Label(r.ReviewText)
					}
				}
				if opts.asJSON {
					return printJSON(cmd.OutOrStdout(), rows)
				}
				printRows(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of reviews")
	return cmd
}

func printRows(w io.Writer, rows []checkRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no reviews")
		return
	}
	for _, r := range rows {
		rating, label, score, date := "-", "pending", "-", "-"
		if r.RatingValue != nil {
			rating = fmt.Sprintf("%.1f", *r.RatingValue)
		}
		if r.Sentiment != nil {
			label = *r.Sentiment
		}
		if r.OverallScore != nil {
			score = fmt.Sprintf("%.2f", *r.OverallScore)
		}
		if r.PostedAt != nil {
			date = r.PostedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s  %-11s %s  rating %s  %-8s score %s\n", r.ID, r.Provider, date, rating, label, score)
		if r.Local != "" {
			fmt.Fprintf(w, "    lexicon: %s\n", r.Local)
		}
		if text := preview(r.ReviewText, 80); text != "" {
			fmt.Fprintf(w, "    %q\n", text)
		}
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
