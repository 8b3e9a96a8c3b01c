// Package analyzer turns unanalyzed reviews of a place into structured
// aspect-based analyses using a language model, in paced and retried batches.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"review-insights/internal/constants"
	"review-insights/internal/domain"
	"review-insights/internal/domain/specs"
	"review-insights/internal/prompts"
	"review-insights/pkg/config"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/events"
	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
)

// Store is the persistence the analyzer needs.
type Store interface {
	domain.ReviewRepository
	domain.PlaceRepository
}

// Settings are the tunables read from config. They can be swapped while the
// service runs; a run uses the snapshot it started with.
type Settings struct {
	DefaultLimit    int
	MaxLimit        int
	BatchSize       int
	MaxBatches      int
	ProviderRatio   float64
	MaxReviewLength int
	MaxOutputTokens int
	PostBatchDelay  time.Duration
	ClaimTTL        time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	TargetRPM       int
	TargetTPM       int
	ModelKeyName    string
	ModelName       string
}

func SettingsFrom(cfg *config.Config) Settings {
	key, model := "OPENAI_API_KEY", cfg.OpenAIModel
	if cfg.ModelProvider == "gemini" {
		key, model = "GEMINI_API_KEY", cfg.GeminiModel
	}
	return Settings{
		DefaultLimit:    cfg.AnalyzeDefaultLimit,
		MaxLimit:        cfg.AnalyzeMaxLimit,
		BatchSize:       max(1, cfg.AnalyzeBatchSize),
		MaxBatches:      cfg.AnalyzeMaxBatches,
		ProviderRatio:   clampRatio(cfg.AnalyzeProviderRatio),
		MaxReviewLength: cfg.AnalyzeMaxReviewLength,
		MaxOutputTokens: cfg.AnalyzeMaxOutputTokens,
		PostBatchDelay:  cfg.AnalyzePostBatchDelay,
		ClaimTTL:        cfg.AnalyzeClaimTTL,
		MaxRetries:      max(1, cfg.MaxRetries),
		BackoffBase:     cfg.BackoffBase,
		BackoffMax:      cfg.BackoffMax,
		TargetRPM:       cfg.TargetRPM,
		TargetTPM:       cfg.TargetTPM,
		ModelKeyName:    key,
		ModelName:       model,
	}
}

// Input selects what a run analyzes. Limit 0 means the configured default.
// ReviewIDs optionally restricts the run to specific reviews of the place.
type Input struct {
	ExternalPlaceID string   `json:"external_place_id"`
	Limit           int      `json:"limit,omitempty"`
	ReviewIDs       []string `json:"review_ids,omitempty"`
}

// ProcessedReview is one written analysis in the summary.
type ProcessedReview struct {
	ReviewID     string           `json:"review_id"`
	Sentiment    domain.Sentiment `json:"sentiment"`
	AspectsCount int              `json:"aspects_count"`
	GapToFive    bool             `json:"gap_to_five"`
	OverallScore float64          `json:"overall_score"`
}

// Summary is the result of a run.
type Summary struct {
	OK                   bool              `json:"ok"`
	RunID                string            `json:"run_id"`
	Analyzed             int               `json:"analyzed"`
	TotalReviewsFound    int               `json:"total_reviews_found"`
	Batches              int               `json:"batches"`
	FailedBatches        int               `json:"failed_batches"`
	UnprocessedReviewIDs []string          `json:"unprocessed_review_ids"`
	ProcessedReviews     []ProcessedReview `json:"processed_reviews"`
	Usage                Usage             `json:"usage"`
}

type Option func(*Analyzer)

func WithPublisher(p events.Publisher) Option { return func(a *Analyzer) { a.pub = p } }

// WithEventStore enables the last run section of Diagnose.
func WithEventStore(s events.EventStore) Option { return func(a *Analyzer) { a.store = s } }

func WithLogger(l *logging.Logger) Option {
	return func(a *Analyzer) { a.log = l.WithComponent("analyzer") }
}

func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

// WithSleep replaces the context-aware sleep used for backoff, hint waits
// and the post batch delay.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(a *Analyzer) { a.sleep = fn }
}

func WithJitter(fn func() time.Duration) Option { return func(a *Analyzer) { a.jitter = fn } }

type Analyzer struct {
	repo     Store
	model    Model
	system   string
	prompts  *prompts.Manager
	settings atomic.Pointer[Settings]
	pacer    *Pacer
	pub      events.Publisher
	store    events.EventStore
	log      *logging.ComponentLogger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	jitter   func() time.Duration
}

// New builds an analyzer. model may be nil when no API key is configured;
// runs then fail with a ConfigurationError while Diagnose and ResetAnalysis
// keep working.
func New(repo Store, model Model, pm *prompts.Manager, s Settings, opts ...Option) (*Analyzer, error) {
	system, err := pm.Render(prompts.AnalysisSystem, prompts.SystemData{
		CriticalFlags:   flagNames(),
		MaxSummaryChars: constants.ExecutiveSummaryMaxChars,
		Vocabulary:      prompts.Vocabulary,
	})
	if err != nil {
		return nil, err
	}
	a := &Analyzer{
		repo:    repo,
		model:   model,
		system:  system,
		prompts: pm,
		pacer:   NewPacer(s.TargetRPM, s.TargetTPM, s.BackoffBase),
		pub:     events.Nop{},
		log:     logging.NewNop().WithComponent("analyzer"),
		now:     time.Now,
		sleep:   sleepCtx,
		jitter:  defaultJitter,
	}
	a.settings.Store(&s)
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func flagNames() []string {
	out := make([]string, len(domain.CriticalFlags))
	for i, f := range domain.CriticalFlags {
		out[i] = string(f)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Apply installs new settings, typically from a config.Watcher change.
func (a *Analyzer) Apply(s Settings) {
	a.settings.Store(&s)
	a.pacer.Update(s.TargetRPM, s.TargetTPM, s.BackoffBase)
}

// Watch applies config changes until ch closes.
func (a *Analyzer) Watch(ch <-chan config.Change) {
	for chg := range ch {
		if chg.Err != nil || chg.New == nil {
			continue
		}
		a.Apply(SettingsFrom(chg.New))
		a.log.Info("analysis settings updated", logging.Strings("fields", chg.Fields))
	}
}

func (a *Analyzer) Settings() Settings { return *a.settings.Load() }

// ClampLimit applies the default and the [1, max] bounds.
func (s Settings) ClampLimit(limit int) int {
	if limit == 0 {
		limit = s.DefaultLimit
	}
	if limit < 1 {
		limit = 1
	}
	if s.MaxLimit > 0 && limit > s.MaxLimit {
		limit = s.MaxLimit
	}
	return limit
}

// Run analyzes up to the limit of unanalyzed reviews of one place. Batches
// run one at a time; a batch failure is recorded in the summary and the run
// continues. Only configuration problems and bad input fail the run itself.
func (a *Analyzer) Run(ctx context.Context, in Input) (*Summary, error) {
	const op = "analyzer.Run"
	s := a.Settings()
	if a.model == nil {
		return nil, errs.NewConfiguration(op, s.ModelKeyName, "model API key not configured")
	}
	if in.ExternalPlaceID == "" {
		return nil, errs.NewValidation(op, "external_place_id is required", nil)
	}
	if _, err := a.repo.GetPlaceCtx(ctx, in.ExternalPlaceID); err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, errs.NewValidation(op, "unknown external_place_id", err)
		}
		return nil, err
	}

	runID := uuid.NewString()
	log := a.log.Ctx(ctx)
	cost := NewCostTracker(PricingFor(s.ModelName))
	sum := &Summary{OK: true, RunID: runID, UnprocessedReviewIDs: []string{}, ProcessedReviews: []ProcessedReview{}}

	claimed, err := a.repo.ClaimUnanalyzedCtx(ctx, domain.ClaimRequest{
		ExternalPlaceID: in.ExternalPlaceID,
		ReviewIDs:       in.ReviewIDs,
		Limit:           s.ClampLimit(in.Limit),
		LeaseTTL:        s.ClaimTTL,
		Now:             a.now(),
		Owner:           runID,
	})
	if err != nil {
		return nil, err
	}

	withText, blank := specs.Partition(ctx, specs.HasText(), claimed)
	var pending []item
	empty := make([]string, 0, len(blank))
	for _, r := range blank {
		empty = append(empty, r.ID)
	}
	for _, r := range withText {
		text := prepareText(r.Text(), s.MaxReviewLength)
		if text == "" {
			empty = append(empty, r.ID)
			continue
		}
		pending = append(pending, item{ID: r.ID, Provider: normalizeProvider(r.Provider), Text: text})
	}
	if len(empty) > 0 {
		a.release(ctx, runID, empty)
		metrics.Reviews.WithLabelValues("skipped_empty").Add(float64(len(empty)))
	}
	sum.TotalReviewsFound = len(pending)
	log.Info("analysis run started",
		logging.String("run_id", runID),
		logging.String("external_place_id", in.ExternalPlaceID),
		logging.Int("pending", len(pending)),
		logging.Int("skipped_empty", len(empty)))

	q := newBuckets(pending)
	for q.len() > 0 {
		if s.MaxBatches > 0 && sum.Batches >= s.MaxBatches {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if sum.Batches > 0 {
			a.renew(ctx, runID, q, sum)
			if q.len() == 0 {
				break
			}
		}
		b := newBatch(sum.Batches, q.take(s.BatchSize, s.ProviderRatio))
		sum.Batches++

		before := cost.Usage()
		analyses, err := a.runBatch(ctx, b, s, cost)
		if err == nil {
			err = a.repo.SaveAnalysesCtx(ctx, in.ExternalPlaceID, runID, analyses)
		}
		if err != nil {
			a.failBatch(ctx, runID, in.ExternalPlaceID, b, err, sum)
		} else {
			a.succeedBatch(ctx, runID, in.ExternalPlaceID, b, analyses, usageSince(before, cost.Usage()), sum)
		}

		if q.len() > 0 {
			if err := a.sleep(ctx, s.PostBatchDelay); err != nil {
				break
			}
		}
	}

	// Reviews left in the queues were never sent; give their leases back.
	if rest := q.remaining(); len(rest) > 0 {
		ids := make([]string, len(rest))
		for i, it := range rest {
			ids[i] = it.ID
		}
		a.release(ctx, runID, ids)
		sum.UnprocessedReviewIDs = append(sum.UnprocessedReviewIDs, ids...)
	}

	sum.Usage = cost.Usage()
	a.publish(ctx, events.RunCompleted{
		Base:          events.NewBase(runID, in.ExternalPlaceID),
		Analyzed:      sum.Analyzed,
		TotalFound:    sum.TotalReviewsFound,
		Batches:       sum.Batches,
		FailedBatches: sum.FailedBatches,
		Unprocessed:   sum.UnprocessedReviewIDs,
		CostUSD:       sum.Usage.CostUSD,
		DurationMs:    cost.Duration().Milliseconds(),
	})
	log.Info("analysis run completed",
		logging.String("run_id", runID),
		logging.Int("analyzed", sum.Analyzed),
		logging.Int("batches", sum.Batches),
		logging.Int("failed_batches", sum.FailedBatches),
		logging.Float64("cost_usd", sum.Usage.CostUSD))

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// runBatch drives one batch through its lifecycle and returns the validated
// analyses of a succeeded batch.
func (a *Analyzer) runBatch(ctx context.Context, b *Batch, s Settings, cost *CostTracker) ([]domain.ReviewAnalysis, error) {
	payload, err := json.Marshal(struct {
		Reviews []item `json:"reviews"`
	}{b.Items})
	if err != nil {
		_ = b.Transition(FailedTerminal)
		return nil, err
	}
	user, err := a.prompts.Render(prompts.AnalysisUser, prompts.UserData{Count: len(b.Items), Payload: string(payload)})
	if err != nil {
		_ = b.Transition(FailedTerminal)
		return nil, err
	}
	req := Request{System: a.system, User: user, MaxOutputTokens: s.MaxOutputTokens}
	estimate := EstimateTokens(len(a.system), len(user), s.MaxOutputTokens)
	backoff := Backoff{Base: s.BackoffBase, Max: s.BackoffMax, Jitter: a.jitter}
	log := a.log.Ctx(ctx)

	var prev time.Duration
	for {
		if err := a.pacer.Wait(ctx, estimate); err != nil {
			b.Err = err
			_ = b.Transition(FailedTerminal)
			return nil, err
		}
		if err := b.Transition(Sent); err != nil {
			return nil, err
		}

		resp, err := a.model.Complete(ctx, req)
		if err == nil {
			cost.AddUsage(resp.PromptTokens, resp.CompletionTokens)
			analyses, verr := ParseBatch(resp.Content, b.ReviewIDs())
			if verr != nil {
				b.Err = verr
				_ = b.Transition(FailedTerminal)
				return nil, verr
			}
			if err := b.Transition(Succeeded); err != nil {
				return nil, err
			}
			if d := a.pacer.HintDelay(resp.Hints); d > 0 {
				log.Warn("rate limit nearly exhausted, pausing", logging.Duration("wait", d))
				if err := a.sleep(ctx, d); err != nil {
					return analyses, nil
				}
			}
			return analyses, nil
		}

		b.Err = err
		if !errs.IsRetryable(err) || b.Attempts >= s.MaxRetries || ctx.Err() != nil {
			_ = b.Transition(FailedTerminal)
			return nil, err
		}
		delay := backoff.Delay(b.Attempts-1, retryAfterOf(err), prev)
		prev = delay
		b.Delays = append(b.Delays, delay)
		if err := b.Transition(Retrying); err != nil {
			return nil, err
		}
		metrics.Retries.WithLabelValues(retryReason(err)).Inc()
		log.Warn("model request failed, retrying",
			logging.Int("batch", b.Index),
			logging.Int("attempt", b.Attempts),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := a.sleep(ctx, delay); err != nil {
			_ = b.Transition(FailedTerminal)
			return nil, err
		}
	}
}

func usageSince(before, after Usage) Usage {
	return Usage{
		PromptTokens:     after.PromptTokens - before.PromptTokens,
		CompletionTokens: after.CompletionTokens - before.CompletionTokens,
		Requests:         after.Requests - before.Requests,
		CostUSD:          after.CostUSD - before.CostUSD,
	}
}

func (a *Analyzer) succeedBatch(ctx context.Context, runID, placeID string, b *Batch, analyses []domain.ReviewAnalysis, usage Usage, sum *Summary) {
	got := make(map[string]bool, len(analyses))
	for _, an := range analyses {
		got[an.ReviewID] = true
		sum.ProcessedReviews = append(sum.ProcessedReviews, ProcessedReview{
			ReviewID:     an.ReviewID,
			Sentiment:    an.Sentiment,
			AspectsCount: len(an.Aspects),
			GapToFive:    an.GapToFive,
			OverallScore: an.OverallScore,
		})
	}
	sum.Analyzed += len(analyses)

	var omitted []string
	for _, id := range b.ReviewIDs() {
		if !got[id] {
			omitted = append(omitted, id)
		}
	}
	if len(omitted) > 0 {
		a.release(ctx, runID, omitted)
		sum.UnprocessedReviewIDs = append(sum.UnprocessedReviewIDs, omitted...)
		metrics.Reviews.WithLabelValues("omitted").Add(float64(len(omitted)))
		a.log.Ctx(ctx).Warn("model omitted reviews", logging.Int("batch", b.Index), logging.Strings("review_ids", omitted))
	}
	metrics.Batches.WithLabelValues(Succeeded.String()).Inc()
	metrics.Reviews.WithLabelValues("analyzed").Add(float64(len(analyses)))

	a.publish(ctx, events.BatchSucceeded{
		Base:             events.NewBase(runID, placeID),
		Batch:            b.Index,
		ReviewIDs:        b.ReviewIDs(),
		Analyzed:         len(analyses),
		Attempts:         b.Attempts,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	})
}

func (a *Analyzer) failBatch(ctx context.Context, runID, placeID string, b *Batch, err error, sum *Summary) {
	ids := b.ReviewIDs()
	a.release(ctx, runID, ids)
	sum.FailedBatches++
	sum.UnprocessedReviewIDs = append(sum.UnprocessedReviewIDs, ids...)
	metrics.Batches.WithLabelValues(FailedTerminal.String()).Inc()
	metrics.Reviews.WithLabelValues("failed").Add(float64(len(ids)))

	status := 0
	var u *errs.UpstreamError
	if errors.As(err, &u) {
		status = u.StatusCode
	}
	a.log.Ctx(ctx).Error("batch failed", err,
		logging.Int("batch", b.Index),
		logging.Int("attempts", b.Attempts),
		logging.String("op", errs.Op(err)),
		logging.Any("error_context", errs.Details(err)),
		logging.Strings("review_ids", ids))
	a.publish(ctx, events.BatchFailed{
		Base:       events.NewBase(runID, placeID),
		Batch:      b.Index,
		ReviewIDs:  ids,
		Attempts:   b.Attempts,
		StatusCode: status,
		Reason:     errs.PublicMessage(err),
	})
}

// release gives the run's leases back even when the run context is already
// done.
func (a *Analyzer) release(ctx context.Context, runID string, ids []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DBWriteTimeoutDefault)
	defer cancel()
	if err := a.repo.ReleaseClaimsCtx(ctx, runID, ids); err != nil {
		a.log.Error("failed to release review leases", err, logging.Strings("review_ids", ids))
	}
}

// renew restamps the leases of every queued review so they stay live for
// another ClaimTTL. Reviews whose lease went to another run leave the queue
// and are reported as unprocessed. A failed renewal keeps the queue as is;
// the owner check on save still keeps a review from being written twice.
func (a *Analyzer) renew(ctx context.Context, runID string, q *buckets, sum *Summary) {
	ids := q.ids()
	if len(ids) == 0 {
		return
	}
	held, err := a.repo.RenewClaimsCtx(ctx, runID, ids, a.now())
	if err != nil {
		a.log.Ctx(ctx).Warn("failed to renew review leases", logging.Int("reviews", len(ids)), logging.Error(err))
		return
	}
	set := make(map[string]bool, len(held))
	for _, id := range held {
		set[id] = true
	}
	if lost := q.keep(set); len(lost) > 0 {
		sum.UnprocessedReviewIDs = append(sum.UnprocessedReviewIDs, lost...)
		metrics.Reviews.WithLabelValues("lease_lost").Add(float64(len(lost)))
		a.log.Ctx(ctx).Warn("review leases taken over by another run", logging.Strings("review_ids", lost))
	}
}

func (a *Analyzer) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.EventsSQLTimeoutDefault)
	defer cancel()
	if err := a.pub.Publish(ctx, ev); err != nil {
		a.log.Warn("event publish failed", logging.String("type", ev.Type()), logging.Error(err))
	}
}

// ResetAnalysis clears the analysis of the given reviews, or of every review
// of the place when ids is empty, so a later Run picks them up again.
func (a *Analyzer) ResetAnalysis(ctx context.Context, placeID string, ids []string) (int64, error) {
	if placeID == "" {
		return 0, errs.NewValidation("analyzer.ResetAnalysis", "external_place_id is required", nil)
	}
	n, err := a.repo.ResetAnalysisCtx(ctx, placeID, ids)
	if err != nil {
		return 0, err
	}
	a.log.Ctx(ctx).Info("analysis reset", logging.String("external_place_id", placeID), logging.Int64("reviews", n))
	return n, nil
}

// Diagnosis describes a place's analysis backlog.
type Diagnosis struct {
	ExternalPlaceID string                `json:"external_place_id"`
	PlaceName       string                `json:"place_name"`
	Total           int                   `json:"total_reviews"`
	Unanalyzed      int                   `json:"unanalyzed"`
	Leased          int                   `json:"leased"`
	Sample          []domain.ReviewSample `json:"sample"`
	LastRun         *events.RunState      `json:"last_run,omitempty"`
}

func (a *Analyzer) Diagnose(ctx context.Context, placeID string) (*Diagnosis, error) {
	place, err := a.repo.GetPlaceCtx(ctx, placeID)
	if err != nil {
		return nil, err
	}
	s := a.Settings()
	counts, err := a.repo.CountReviewsCtx(ctx, placeID, a.now().Add(-s.ClaimTTL))
	if err != nil {
		return nil, err
	}
	sample, err := a.repo.SampleUnanalyzedCtx(ctx, placeID, constants.DiagnoseSampleSize)
	if err != nil {
		return nil, err
	}
	d := &Diagnosis{
		ExternalPlaceID: placeID,
		PlaceName:       place.Name,
		Total:           counts.Total,
		Unanalyzed:      counts.Unanalyzed,
		Leased:          counts.Leased,
		Sample:          sample,
	}
	if a.store != nil {
		st, err := a.store.Replay(ctx, placeID)
		if err != nil {
			a.log.Warn("event replay failed", logging.Error(err))
		} else if st.Runs > 0 {
			d.LastRun = st
		}
	}
	return d, nil
}

func (d *Diagnosis) String() string {
	return fmt.Sprintf("%s (%s): %d reviews, %d unanalyzed, %d leased", d.PlaceName, d.ExternalPlaceID, d.Total, d.Unanalyzed, d.Leased)
}
