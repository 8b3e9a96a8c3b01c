// Command reviewctl runs review analysis from an operator shell against the
// same database and model configuration as the service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"review-insights/internal/analyzer"
	"review-insights/internal/bootstrap"
	"review-insights/internal/domain"
	"review-insights/internal/infrastructure/repository"
	"review-insights/internal/sentiment"
	"review-insights/pkg/config"
	"review-insights/pkg/container"
)

// Runner is the analyzer surface the commands use.
type Runner interface {
	Diagnose(ctx context.Context, placeID string) (*analyzer.Diagnosis, error)
	Run(ctx context.Context, in analyzer.Input) (*analyzer.Summary, error)
	ResetAnalysis(ctx context.Context, placeID string, reviewIDs []string) (int64, error)
}

type ReviewLister interface {
	LatestReviewsCtx(ctx context.Context, limit int) ([]domain.LatestReview, error)
}

// env is what a command runs against. Label is nil when the local
// sentiment model could not be loaded.
type env struct {
	Analyzer Runner
	Reviews  ReviewLister
	Label    func(text string) string
	Close    func() error
}

type opener func(ctx context.Context) (*env, error)

type options struct {
	timeout time.Duration
	asJSON  bool
}

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "reviewctl",
		Short:        "Analyze and inspect place reviews",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "Overall command timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON")

	root.AddCommand(newAnalyzeCmd(open, opts), newReanalyzeCmd(open, opts), newCheckCmd(open, opts))
	return root
}

// withEnv opens the environment under the command timeout and closes it
// when fn returns.
func withEnv(cmd *cobra.Command, open opener, opts *options, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	e, err := open(ctx)
	if err != nil {
		return err
	}
	if e.Close != nil {
		defer e.Close()
	}
	return fn(ctx, e)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openEnv builds the analyzer and repository from the environment.
func openEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e, err := resolveEnv(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return e, nil
}

func resolveEnv(c *container.Container) (*env, error) {
	var (
		an   *analyzer.Analyzer
		repo *repository.SQLRepository
	)
	if err := c.Resolve(&an); err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	if err := c.Resolve(&repo); err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	e := &env{Analyzer: an, Reviews: repo, Close: c.Close}
	if lex, err := sentiment.New(); err == nil {
		e.Label = lex.Label
	}
	return e, nil
}
