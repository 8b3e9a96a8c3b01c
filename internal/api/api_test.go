package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"review-insights/internal/analyzer"
	"review-insights/internal/auth"
	"review-insights/internal/domain"
	"review-insights/internal/places"
	testutil "review-insights/internal/testing"
	errs "review-insights/pkg/errors"
)

const (
	ownerToken   = "owner-token"
	otherToken   = "other-token"
	serviceToken = "service-token"

	ownerID = "user-owner"
	otherID = "user-other"
)

type tokenResolver map[string]*auth.Identity

func (t tokenResolver) Resolve(_ context.Context, token string) (*auth.Identity, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return nil, errs.NewUnauthorized("test", "Unauthorized")
}

var resolver = tokenResolver{
	ownerToken:   {UserID: ownerID, Email: "owner@example.com"},
	otherToken:   {UserID: otherID},
	serviceToken: {UserID: "ops", Service: true},
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	runs   []analyzer.Input
	resets [][]string
	err    error
	// block, when set, holds Run until closed
	block chan struct{}
}

func (f *fakeAnalyzer) Run(ctx context.Context, in analyzer.Input) (*analyzer.Summary, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &analyzer.Summary{OK: true, RunID: "run-1", Analyzed: 2, TotalReviewsFound: 2, Batches: 1,
		UnprocessedReviewIDs: []string{}, ProcessedReviews: []analyzer.ProcessedReview{}}, nil
}

func (f *fakeAnalyzer) ResetAnalysis(_ context.Context, placeID string, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, ids)
	return 3, nil
}

func (f *fakeAnalyzer) Runs() []analyzer.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analyzer.Input(nil), f.runs...)
}

type fakePlaces struct{ got places.Query }

func (f *fakePlaces) Autocomplete(_ context.Context, q places.Query) (*places.Result, error) {
	f.got = q
	return &places.Result{Suggestions: []places.Suggestion{{PlaceID: "g1", Description: "Cafe"}}, Query: q.Input, Count: 1}, nil
}

type fixture struct {
	store    *testutil.MemStore
	analyzer *fakeAnalyzer
	server   *Server
	handler  http.Handler
}

func newFixture(t *testing.T, mods ...func(*Deps)) *fixture {
	t.Helper()
	store := testutil.NewMemStore()
	an := &fakeAnalyzer{}
	d := Deps{
		Repo:     store,
		UoW:      store,
		Analyzer: an,
		Auth:     resolver,
		Jobs:     NewJobs(context.Background(), nil),
		Now:      func() time.Time { return time.Date(2025, 3, 8, 19, 30, 0, 0, time.UTC) }, // a Saturday evening
	}
	for _, m := range mods {
		m(&d)
	}
	s := NewServer(d)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Jobs.Shutdown(ctx)
	})
	return &fixture{store: store, analyzer: an, server: s, handler: s.Router()}
}

// call performs a request and decodes the JSON response.
func (f *fixture) call(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (f *fixture) addPlace(id, name string, googleRating *float64, googleVotes, taVotes int) {
	p := domain.ExternalPlace{ID: id, Name: name, GooglePlaceID: "g-" + id, Address: "Calle " + name}
	p.GoogleRatings = domain.RatingSnapshot{RatingValue: googleRating, VotesCount: &googleVotes}
	ta := 4.0
	p.TripadvisorRatings = domain.RatingSnapshot{RatingValue: &ta, VotesCount: &taVotes}
	f.store.AddPlace(p)
}

func (f *fixture) addBusiness(id, owner, placeID string) {
	f.store.Businesses = append(f.store.Businesses, domain.Business{ID: id, OwnerUserID: owner, ExternalPlaceID: placeID, Plan: domain.PlanTrial})
}

func ptr[T any](v T) *T { return &v }

func endpoint(name string) string { return "/functions/v1/" + name }
