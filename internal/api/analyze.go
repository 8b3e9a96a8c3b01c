package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"review-insights/internal/analyzer"
	"review-insights/pkg/cache"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
)

// looseInt accepts a JSON number or a numeric string. Anything else decodes
// as unset so the configured default applies.
type looseInt struct {
	n   int
	set bool
}

func (l *looseInt) UnmarshalJSON(b []byte) error {
	*l = looseInt{}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Trunc(f)
	switch {
	case f > math.MaxInt32:
		f = math.MaxInt32
	case f < 1:
		// an explicit zero or negative limit still analyzes one review
		f = 1
	}
	l.n, l.set = int(f), true
	return nil
}

type analyzeRequest struct {
	ExternalPlaceID string   `json:"external_place_id"`
	Limit           looseInt `json:"limit"`
	ReviewIDs       []string `json:"review_ids"`
}

func (a analyzeRequest) input() analyzer.Input {
	return analyzer.Input{ExternalPlaceID: strings.TrimSpace(a.ExternalPlaceID), Limit: a.Limit.n, ReviewIDs: a.ReviewIDs}
}

// analyzeReviews runs the batcher for a place on behalf of its owner or a
// service token.
func (s *Server) analyzeReviews() http.HandlerFunc {
	const op = "api.analyzeReviews"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req analyzeRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		in := req.input()
		if err := s.checkAnalysis(op, in.ExternalPlaceID); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.authorizePlace(r, in.ExternalPlaceID); err != nil {
			s.fail(w, r, err)
			return
		}
		sum, err := s.runAnalysis(ctx, in.ExternalPlaceID, func(ctx context.Context) (*analyzer.Summary, error) {
			return s.Analyzer.Run(ctx, in)
		})
		if err != nil {
			s.failAnalysis(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// reanalyzeReviews clears stored analyses of a place, or of the given
// reviews, and analyzes them again. Only an owner of the place may call it.
func (s *Server) reanalyzeReviews() http.HandlerFunc {
	const op = "api.reanalyzeReviews"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req analyzeRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		in := req.input()
		if err := s.checkAnalysis(op, in.ExternalPlaceID); err != nil {
			s.fail(w, r, err)
			return
		}
		// a reset discards stored analyses, so only an owner may ask for one
		if err := s.requireOwner(r, in.ExternalPlaceID); err != nil {
			s.fail(w, r, err)
			return
		}
		var reset int64
		sum, err := s.runAnalysis(ctx, in.ExternalPlaceID, func(ctx context.Context) (*analyzer.Summary, error) {
			n, err := s.Analyzer.ResetAnalysis(ctx, in.ExternalPlaceID, in.ReviewIDs)
			if err != nil {
				return nil, err
			}
			reset = n
			s.log.Ctx(ctx).Info("analysis reset",
				logging.String("external_place_id", in.ExternalPlaceID),
				logging.Int64("reset", n))
			return s.Analyzer.Run(ctx, in)
		})
		if err != nil {
			s.failAnalysis(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			*analyzer.Summary
			Reset int64 `json:"reset"`
		}{sum, reset})
	}
}

func (s *Server) checkAnalysis(op, placeID string) error {
	if err := required(op, "external_place_id", placeID); err != nil {
		return err
	}
	if s.Analyzer == nil {
		return errs.NewConfiguration(op, "OPENAI_API_KEY", "Review analysis is not configured")
	}
	return nil
}

func (s *Server) failAnalysis(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, cache.ErrLocked) {
		writeJSON(w, http.StatusConflict, envelope{"ok": false, "error": "An analysis is already running for this place"})
		return
	}
	s.fail(w, r, err)
}
