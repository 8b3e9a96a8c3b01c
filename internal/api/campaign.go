package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"review-insights/internal/analyzer"
	"review-insights/internal/constants"
	"review-insights/internal/domain"
	"review-insights/internal/domain/specs"
	"review-insights/pkg/cache"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
)

func (s *Server) getCampaign() http.HandlerFunc {
	const op = "api.getCampaign"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		code := strings.TrimSpace(r.URL.Query().Get("short_code"))
		if code == "" {
			s.fail(w, r, errs.NewValidation(op, "Missing short_code parameter", nil))
			return
		}
		c, err := s.Repo.GetCampaignByShortCodeCtx(ctx, code)
		if err != nil {
			s.fail(w, r, withMessage(err, "Campaign not found"))
			return
		}
		if !c.Active() {
			s.fail(w, r, errs.NewForbidden(op, "Campaign is not active"))
			return
		}
		if err := s.Repo.IncrementCampaignCounterCtx(ctx, c.ID, domain.CounterViews); err != nil {
			s.log.Ctx(ctx).Warn("failed to increment views counter",
				logging.String("campaign_id", c.ID),
				logging.Error(err))
		}
		ok(w, envelope{
			"campaign": envelope{"id": c.ID, "name": c.Name, "short_code": c.ShortCode},
			"business": envelope{
				"name":       c.BusinessName,
				"logo":       optional(c.BusinessLogo),
				"main_image": optional(c.BusinessMainImage),
				"address":    optional(c.BusinessAddress),
				"category":   optional(c.BusinessCategory),
			},
		})
	}
}

type feedbackRequest struct {
	ShortCode       string              `json:"short_code"`
	RatingValue     int                 `json:"rating_value"`
	SelectedAspects []string            `json:"selected_aspects"`
	AspectDetails   map[string][]string `json:"aspect_details"`
	CESScore        *int                `json:"ces_score"`
	NPSScore        *int                `json:"nps_score"`
	ReviewText      string              `json:"review_text"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerPhone   string              `json:"customer_phone"`
}

func (f *feedbackRequest) validate() error {
	const op = "api.feedbackRequest.validate"
	if strings.TrimSpace(f.ShortCode) == "" || f.RatingValue == 0 {
		return errs.NewValidation(op, "Missing required fields: short_code, rating_value", nil)
	}
	if f.RatingValue < 1 || f.RatingValue > 5 {
		return errs.NewValidation(op, "rating_value must be between 1 and 5", nil)
	}
	if f.CESScore != nil && (*f.CESScore < 1 || *f.CESScore > 7) {
		return errs.NewValidation(op, "ces_score must be between 1 and 7", nil)
	}
	if f.NPSScore != nil && (*f.NPSScore < 0 || *f.NPSScore > 10) {
		return errs.NewValidation(op, "nps_score must be between 0 and 10", nil)
	}
	return nil
}

// submitCampaignFeedback stores feedback left through a campaign link and
// starts an analysis of it when it carries enough text.
func (s *Server) submitCampaignFeedback() http.HandlerFunc {
	const op = "api.submitCampaignFeedback"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req feedbackRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			s.fail(w, r, err)
			return
		}
		c, err := s.Repo.GetCampaignByShortCodeCtx(ctx, strings.TrimSpace(req.ShortCode))
		if err == nil && !c.Active() {
			err = errs.NewNotFound(op, "campaign", req.ShortCode)
		}
		if err != nil {
			s.fail(w, r, withMessage(err, "Campaign not found or inactive"))
			return
		}
		if c.ExternalPlaceID == "" {
			s.fail(w, r, errs.NewConfiguration(op, "business.external_place_id", "Invalid campaign configuration"))
			return
		}

		now := s.Now()
		review := &domain.CampaignReview{
			ExternalPlaceID: c.ExternalPlaceID,
			CampaignID:      c.ID,
			RatingValue:     req.RatingValue,
			ReviewText:      req.ReviewText,
			SelectedAspects: req.SelectedAspects,
			AspectDetails:   req.AspectDetails,
			CESScore:        req.CESScore,
			NPSScore:        req.NPSScore,
			CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
			CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
			AuthorName:      authorName(req.CustomerEmail),
			Context:         feedbackContext(r.UserAgent(), now),
			PostedAt:        now.UTC(),
		}
		if err := s.Repo.InsertCampaignReviewCtx(ctx, review); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.Repo.IncrementCampaignCounterCtx(ctx, c.ID, domain.CounterInternalFeedback); err != nil {
			s.log.Ctx(ctx).Warn("failed to increment feedback counter",
				logging.String("campaign_id", c.ID),
				logging.Error(err))
		}

		if specs.TextLongerThan(constants.FeedbackAnalyzeMinChars).IsSatisfiedBy(ctx, req.ReviewText) {
			s.analyzeInBackground(ctx, c.ExternalPlaceID, review.ID)
		}
		ok(w, envelope{"review_id": review.ID, "message": "Feedback submitted successfully"})
	}
}

// analyzeInBackground analyzes one review after the response is sent. A
// review that cannot be analyzed now stays unanalyzed for the next run.
func (s *Server) analyzeInBackground(ctx context.Context, placeID, reviewID string) {
	if s.Analyzer == nil {
		return
	}
	s.Jobs.Go(ctx, "analyze-feedback", constants.BackgroundAnalysisTimeout, func(ctx context.Context) error {
		sum, err := s.runAnalysis(ctx, placeID, func(ctx context.Context) (*analyzer.Summary, error) {
			return s.Analyzer.Run(ctx, analyzer.Input{ExternalPlaceID: placeID, ReviewIDs: []string{reviewID}, Limit: 1})
		})
		if errors.Is(err, cache.ErrLocked) {
			s.log.Ctx(ctx).Info("analysis already running for place, feedback left for the next run",
				logging.String("external_place_id", placeID),
				logging.String("review_id", reviewID))
			return nil
		}
		if err != nil {
			return err
		}
		s.log.Ctx(ctx).Info("feedback analyzed",
			logging.String("review_id", reviewID),
			logging.Int("analyzed", sum.Analyzed),
			logging.Int("failed_batches", sum.FailedBatches))
		return nil
	})
}

// runAnalysis holds the per-place lock for the duration of fn.
func (s *Server) runAnalysis(ctx context.Context, placeID string, fn func(context.Context) (*analyzer.Summary, error)) (*analyzer.Summary, error) {
	unlock, err := s.Locks.Lock(ctx, "analyze:"+placeID, constants.PlaceLockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return fn(ctx)
}

var (
	mobileUA = regexp.MustCompile(`(?i)mobile`)
	tabletUA = regexp.MustCompile(`(?i)tablet`)
)

func deviceType(userAgent string) string {
	switch {
	case userAgent == "":
		return "unknown"
	case mobileUA.MatchString(userAgent):
		return "mobile"
	case tabletUA.MatchString(userAgent):
		return "tablet"
	default:
		return "desktop"
	}
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

func feedbackContext(userAgent string, now time.Time) domain.FeedbackContext {
	wd := now.Weekday()
	return domain.FeedbackContext{
		DeviceType:  deviceType(userAgent),
		UserAgent:   userAgent,
		DayOfWeek:   strings.ToLower(wd.String()),
		TimeOfDay:   timeOfDay(now.Hour()),
		SubmittedAt: now.UTC(),
		IsWeekend:   wd == time.Saturday || wd == time.Sunday,
	}
}

// authorName is the local part of the customer's email, or the anonymous
// placeholder.
func authorName(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.DefaultAuthorName
	}
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return domain.DefaultAuthorName
	}
	return local
}
