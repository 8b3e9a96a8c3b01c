package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"review-insights/internal/analyzer"
	"review-insights/internal/api"
	"review-insights/internal/auth"
	"review-insights/internal/bootstrap"
	"review-insights/internal/constants"
	"review-insights/internal/infrastructure/repository"
	"review-insights/internal/places"
	"review-insights/pkg/cache"
	"review-insights/pkg/config"
	"review-insights/pkg/database"
	"review-insights/pkg/events"
	"review-insights/pkg/health"
	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
	"review-insights/pkg/monitoring"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.New(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("container: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer c.Close()

	var log *logging.Logger
	if err := c.Resolve(&log); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	monitoring.EnableProfiling(cfg.ProfilingEnabled)
	log.Info("starting review-insights", logging.String("version", version), logging.Any("config", cfg.GetConfigSummary()))

	var (
		db    *database.DB
		repo  *repository.SQLRepository
		uow   *repository.SQLUnitOfWorkFactory
		an    *analyzer.Analyzer
		store *events.SQLEventStore
		locks *cache.Cache
	)
	for name, target := range map[string]any{
		"database": &db, "repository": &repo, "unit of work": &uow,
		"analyzer": &an, "event store": &store, "cache": &locks,
	} {
		if err := c.Resolve(target); err != nil {
			log.Fatal("failed to build "+name, err)
		}
	}

	// Identity: static service tokens first, then the auth API.
	var resolvers auth.Chain
	if cfg.AuthServiceTokensFile != "" {
		tokens := auth.NewServiceTokens(cfg.AuthServiceTokensFile, log)
		if err := tokens.Watch(ctx); err != nil {
			log.Warn("service token file not watched", logging.Error(err))
		}
		resolvers = append(resolvers, tokens)
	}
	resolvers = append(resolvers, auth.NewSupabaseResolver(cfg.SupabaseURL, cfg.SupabaseAnonKey,
		auth.WithCache(locks, cfg.AuthCacheTTL),
		auth.WithResolverLogger(log),
	))

	deps := api.Deps{
		Repo:       repo,
		UoW:        uow,
		Analyzer:   an,
		Auth:       resolvers,
		Locks:      locks,
		Jobs:       api.NewJobs(ctx, log),
		Latency:    monitoring.NewLatency(512),
		Log:        log,
		CORSOrigin: cfg.CORSAllowOrigin,
	}
	if cfg.GoogleMapsAPIKey != "" {
		pc, err := places.New(cfg.GoogleMapsAPIKey, cfg.PlacesCountry, cfg.PlacesLanguage, log)
		if err != nil {
			log.Fatal("failed to create places client", err)
		}
		deps.Places = pc
	} else {
		log.Warn("GOOGLE_MAPS_API_KEY not set; places autocomplete disabled")
	}

	// Hot reload of pacing, retry and batching knobs.
	cw := config.NewWatcher(os.Getenv("CONFIG_FILE"), cfg, log)
	go an.Watch(cw.Subscribe())
	if err := cw.Start(); err != nil {
		log.Warn("config watcher not started", logging.Error(err))
	}
	defer cw.Close()

	hm := health.NewManager(version, constants.HealthTimeoutDefault, log)
	hm.Register(health.Database(db.Conn()))
	if locks != nil {
		hm.Register(health.Redis(locks))
	}
	hm.Register(health.Configured("model", cfg.ModelAPIKey() != "", "model API key"))
	hm.Register(health.Configured("places", deps.Places != nil, "Google Maps API key"))

	srv := api.NewServer(deps)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// analyze-reviews answers after the whole run
		WriteTimeout: 15 * time.Minute,
	}
	adminServer := &http.Server{
		Addr:              ":" + cfg.AdminPort,
		Handler:           adminRouter(cfg, hm, deps.Latency, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []*http.Server{server, adminServer} {
		s := s
		g.Go(func() error {
			log.Info("http server listening", logging.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
		defer cancel()
		err := errors.Join(
			server.Shutdown(shutdownCtx),
			adminServer.Shutdown(shutdownCtx),
			deps.Jobs.Shutdown(shutdownCtx),
		)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", err)
	}
	log.Info("shutdown complete")
}

// adminRouter serves metrics, health, runtime stats, per-place run state and,
// when enabled, pprof.
func adminRouter(cfg *config.Config, hm *health.Manager, lat *monitoring.Latency, store *events.SQLEventStore) *mux.Router {
	r := mux.NewRouter()
	hm.Mount(r)
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}
	r.Handle("/debug/runtime", monitoring.RuntimeHandler(lat)).Methods(http.MethodGet)
	r.HandleFunc("/runs/{place_id}", runsHandler(store)).Methods(http.MethodGet)
	if cfg.ProfilingEnabled {
		monitoring.RegisterPprof(r)
	}
	return r
}

// runsHandler returns the replayed run state of a place, plus its latest
// events when ?events=N is given.
func runsHandler(store *events.SQLEventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		placeID := mux.Vars(r)["place_id"]
		st, err := store.Replay(r.Context(), placeID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body := map[string]any{"state": st}
		if n, _ := strconv.Atoi(r.URL.Query().Get("events")); n > 0 {
			evs, err := store.ListByPlace(r.Context(), placeID, n)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			body["events"] = evs
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}
