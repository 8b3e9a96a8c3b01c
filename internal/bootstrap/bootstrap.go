// Package bootstrap registers the constructors shared by the HTTP service and
// reviewctl: persistence, the event sinks and the analyzer.
package bootstrap

import (
	"context"

	"review-insights/internal/analyzer"
	"review-insights/internal/constants"
	"review-insights/internal/infrastructure/repository"
	"review-insights/internal/prompts"
	"review-insights/pkg/cache"
	"review-insights/pkg/config"
	"review-insights/pkg/container"
	"review-insights/pkg/database"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/events"
	"review-insights/pkg/logging"
)

// NewLogger builds the process logger from LOG_LEVEL, LOG_FORMAT and the
// optional log file.
func NewLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultLogConfig()
	lc.Level = logging.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat != "" {
		lc.Format = cfg.LogFormat
	}
	if cfg.EnableFileLogging && cfg.LogFile != "" {
		lc.Output, lc.FilePath = "file", cfg.LogFile
	}
	return logging.NewLogger(lc)
}

// New returns a container with the shared providers registered. Nothing is
// built until the caller resolves it; Close releases what was built.
//
// Optional infrastructure resolves to nil pointers when unconfigured:
// *cache.Cache without REDIS_URL and *events.AMQPPublisher without AMQP_URL.
func New(ctx context.Context, cfg *config.Config) (*container.Container, error) {
	c := container.New()
	if err := c.Supply(cfg); err != nil {
		return nil, err
	}
	providers := []any{
		NewLogger,
		database.Open,
		repository.NewSQLRepository,
		repository.NewSQLUnitOfWorkFactory,
		func(db *database.DB) *events.SQLEventStore {
			return events.NewSQLEventStore(db, constants.EventsSQLTimeoutDefault)
		},
		newAMQPPublisher,
		func(cfg *config.Config) (*cache.Cache, error) { return cache.New(cfg.RedisURL) },
		prompts.NewManager,
		func(cfg *config.Config, repo *repository.SQLRepository, pm *prompts.Manager,
			store *events.SQLEventStore, bus *events.AMQPPublisher, log *logging.Logger,
		) (*analyzer.Analyzer, error) {
			return newAnalyzer(ctx, cfg, repo, pm, store, bus, log)
		},
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newAMQPPublisher(cfg *config.Config, log *logging.Logger) (*events.AMQPPublisher, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
}

// newAnalyzer tolerates a missing model key: the analyzer is still built so
// Diagnose and ResetAnalysis work, and runs report the configuration error.
func newAnalyzer(ctx context.Context, cfg *config.Config, repo analyzer.Store, pm *prompts.Manager,
	store *events.SQLEventStore, bus *events.AMQPPublisher, log *logging.Logger,
) (*analyzer.Analyzer, error) {
	model, err := analyzer.NewModel(ctx, cfg)
	if err != nil {
		if !errs.Is(err, errs.ErrConfiguration) {
			return nil, err
		}
		log.Warn("analysis model not configured", logging.Error(err))
		model = nil
	}
	pub := events.Fanout{store}
	if bus != nil {
		pub = append(pub, bus)
	}
	return analyzer.New(repo, model, pm, analyzer.SettingsFrom(cfg),
		analyzer.WithPublisher(pub),
		analyzer.WithEventStore(store),
		analyzer.WithLogger(log),
	)
}
