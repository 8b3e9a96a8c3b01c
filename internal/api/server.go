// Package api serves the authenticated JSON functions used by the dashboard
// and the public campaign pages under /functions/v1/<name>.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"review-insights/internal/analyzer"
	"review-insights/internal/auth"
	"review-insights/internal/domain"
	"review-insights/internal/places"
	"review-insights/pkg/cache"
	"review-insights/pkg/logging"
	"review-insights/pkg/monitoring"
)

// Analyzer is the part of the review batcher the handlers drive.
type Analyzer interface {
	Run(ctx context.Context, in analyzer.Input) (*analyzer.Summary, error)
	ResetAnalysis(ctx context.Context, placeID string, reviewIDs []string) (int64, error)
}

type Autocompleter interface {
	Autocomplete(ctx context.Context, q places.Query) (*places.Result, error)
}

// Deps are the collaborators of the handlers. Analyzer and Places may be
// nil when their provider is not configured; the matching functions answer
// 503.
type Deps struct {
	Repo     domain.Repository
	UoW      domain.UnitOfWorkFactory
	Analyzer Analyzer
	Places   Autocompleter
	Auth     auth.Resolver
	// Locks serializes analysis runs per place; nil disables locking.
	Locks      *cache.Cache
	Jobs       *Jobs
	Latency    *monitoring.Latency
	Log        *logging.Logger
	CORSOrigin string
	Now        func() time.Time
}

type Server struct {
	Deps
	log  *logging.ComponentLogger
	auth *auth.Middleware
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = logging.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Jobs == nil {
		d.Jobs = NewJobs(context.Background(), d.Log)
	}
	if d.CORSOrigin == "" {
		d.CORSOrigin = "*"
	}
	s := &Server{Deps: d, log: d.Log.WithComponent("api")}
	s.auth = auth.NewMiddleware(d.Auth, s.fail, d.Log)
	return s
}

// prefix is where every function is mounted.
const prefix = "/functions/v1/"

// Router mounts every function.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recoverPanic, s.requestID, monitoring.Middleware(s.Latency), s.cors)

	s.mount(r, "link-business", http.MethodPost, true, s.linkBusiness())
	s.mount(r, "list-competitors", http.MethodPost, true, s.listCompetitors())
	s.mount(r, "add-competitor", http.MethodPost, true, s.addCompetitor())
	s.mount(r, "remove-competitor", http.MethodPost, true, s.removeCompetitor())
	s.mount(r, "get-campaign", http.MethodGet, false, s.getCampaign())
	s.mount(r, "submit-campaign-feedback", http.MethodPost, false, s.submitCampaignFeedback())
	s.mount(r, "list-staff", http.MethodGet, true, s.listStaff())
	s.mount(r, "analyze-reviews", http.MethodPost, true, s.analyzeReviews())
	s.mount(r, "reanalyze-reviews", http.MethodPost, true, s.reanalyzeReviews())
	s.mount(r, "google-places-autocomplete", http.MethodPost, true, s.placesAutocomplete())

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"ok": false, "error": "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"ok": false, "error": "Method not allowed"})
	})
	return r
}

func (s *Server) mount(r *mux.Router, name, method string, authenticated bool, h http.HandlerFunc) {
	var handler http.Handler = h
	if authenticated {
		handler = s.auth.Handler(h)
	}
	r.Handle(prefix+name, handler).Methods(method, http.MethodOptions).Name(name)
}

// cors answers preflight requests before authentication and decorates every
// other response.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.CORSOrigin)
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Ctx(r.Context()).Error("handler panic", nil,
					logging.String("path", r.URL.Path),
					logging.Any("panic", v))
				writeJSON(w, http.StatusInternalServerError, envelope{"ok": false, "error": "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// caller returns the authenticated identity. Routes without the auth
// middleware never call it.
func caller(r *http.Request) *auth.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	if id == nil {
		return &auth.Identity{}
	}
	return id
}
