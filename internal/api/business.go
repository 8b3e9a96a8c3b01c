package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
)

const msgNotOwner = "Business not found or you don't have permission"

// ownedBusiness returns the caller's business on placeID or a Forbidden
// error.
func (s *Server) ownedBusiness(ctx context.Context, userID, placeID string) (*domain.Business, error) {
	b, err := s.Repo.FindBusinessCtx(ctx, userID, placeID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errs.NewForbidden("api.ownedBusiness", msgNotOwner)
	}
	return b, nil
}

type linkBusinessRequest struct {
	ExternalPlaceID string `json:"external_place_id"`
	Plan            string `json:"plan"`
}

// linkBusiness finds or creates the caller's business on a place and starts
// a trial subscription for first-time users.
func (s *Server) linkBusiness() http.HandlerFunc {
	const op = "api.linkBusiness"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req linkBusinessRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := required(op, "external_place_id", req.ExternalPlaceID); err != nil {
			s.fail(w, r, err)
			return
		}
		plan := strings.TrimSpace(req.Plan)
		if plan == "" {
			plan = domain.PlanTrial
		}
		user := caller(r)

		uow, err := s.UoW.Begin(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		defer func() { _ = uow.Rollback() }()

		if _, err := uow.GetPlaceCtx(ctx, req.ExternalPlaceID); err != nil {
			s.fail(w, r, withMessage(err, "external_place not found"))
			return
		}
		b, err := uow.FindBusinessCtx(ctx, user.UserID, req.ExternalPlaceID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		created := false
		if b == nil {
			b = &domain.Business{OwnerUserID: user.UserID, ExternalPlaceID: req.ExternalPlaceID, Plan: plan}
			if err := uow.CreateBusinessCtx(ctx, b); err != nil {
				s.fail(w, r, err)
				return
			}
			created = true
		}

		has, err := uow.HasSubscriptionCtx(ctx, user.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !has {
			now := s.Now().UTC()
			ends := now.Add(domain.TrialPeriod)
			if err := uow.CreateSubscriptionCtx(ctx, &domain.Subscription{
				UserID:      user.UserID,
				Status:      domain.SubscriptionTrial,
				TrialEndsAt: &ends,
				CreatedAt:   now,
			}); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		if err := uow.Commit(); err != nil {
			s.fail(w, r, err)
			return
		}

		s.log.Ctx(ctx).Info("business linked",
			logging.String("business_id", b.ID),
			logging.String("external_place_id", req.ExternalPlaceID),
			logging.Bool("created", created),
			logging.Bool("trial_started", !has))
		ok(w, envelope{"business_id": b.ID, "external_place_id": req.ExternalPlaceID})
	}
}

type placeRequest struct {
	ExternalPlaceID string `json:"external_place_id"`
}

type competitorItem struct {
	ID              string    `json:"id"`
	Rank            int       `json:"rank"`
	ExternalPlaceID string    `json:"external_place_id"`
	Name            string    `json:"name"`
	Rating          *float64  `json:"rating"`
	TotalReviews    int       `json:"totalReviews"`
	GooglePlaceID   *string   `json:"googlePlaceId,omitempty"`
	TripadvisorURL  *string   `json:"tripadvisorUrl,omitempty"`
	Address         *string   `json:"address,omitempty"`
	Phone           *string   `json:"phone,omitempty"`
	Website         *string   `json:"website,omitempty"`
	Image           *string   `json:"image,omitempty"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toCompetitorItem(v domain.CompetitorView) competitorItem {
	it := competitorItem{
		ID:              v.ID,
		Rank:            v.Rank,
		ExternalPlaceID: v.ExternalPlaceID,
		Name:            v.Name,
		Rating:          v.RatingValue,
		TotalReviews:    v.RatingVotes,
		IsActive:        true,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
	if p := v.Place; p != nil {
		it.GooglePlaceID = optional(p.GooglePlaceID)
		it.TripadvisorURL = optional(p.TripadvisorURLPath)
		it.Address = optional(p.Address)
		it.Phone = optional(p.Phone)
		it.Website = optional(p.URL)
		it.Image = optional(p.MainImage)
	}
	return it
}

func (s *Server) listCompetitors() http.HandlerFunc {
	const op = "api.listCompetitors"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req placeRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := required(op, "external_place_id", req.ExternalPlaceID); err != nil {
			s.fail(w, r, err)
			return
		}
		b, err := s.ownedBusiness(ctx, caller(r).UserID, req.ExternalPlaceID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if _, err := s.Repo.GetPlaceCtx(ctx, req.ExternalPlaceID); err != nil {
			s.fail(w, r, withMessage(err, "Main business place not found"))
			return
		}
		views, err := s.Repo.ListCompetitorsCtx(ctx, b.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		list := make([]competitorItem, 0, len(views))
		for _, v := range views {
			list = append(list, toCompetitorItem(v))
		}
		ok(w, envelope{"list": list})
	}
}

type addCompetitorRequest struct {
	ExternalPlaceID   string `json:"external_place_id"`
	CompetitorPlaceID string `json:"competitor_place_id"`
}

// addCompetitor stores a competitor in the lowest free rank. The rank read
// and the insert share one transaction.
func (s *Server) addCompetitor() http.HandlerFunc {
	const op = "api.addCompetitor"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req addCompetitorRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if strings.TrimSpace(req.ExternalPlaceID) == "" || strings.TrimSpace(req.CompetitorPlaceID) == "" {
			s.fail(w, r, errs.NewValidation(op, "external_place_id and competitor_place_id are required", nil))
			return
		}
		if req.ExternalPlaceID == req.CompetitorPlaceID {
			s.fail(w, r, errs.NewValidation(op, "A business cannot be its own competitor", nil))
			return
		}

		uow, err := s.UoW.Begin(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		defer func() { _ = uow.Rollback() }()

		b, err := uow.FindBusinessCtx(ctx, caller(r).UserID, req.ExternalPlaceID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if b == nil {
			s.fail(w, r, errs.NewForbidden(op, msgNotOwner))
			return
		}
		place, err := uow.GetPlaceCtx(ctx, req.CompetitorPlaceID)
		if err != nil {
			s.fail(w, r, withMessage(err, "Competitor place not found. Make sure to onboard it first."))
			return
		}
		ranks, err := uow.CompetitorRanksCtx(ctx, b.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		rank := domain.FreeRank(ranks)
		if rank == 0 {
			s.fail(w, r, errs.NewBiz(op, "Maximum 4 competitors allowed. Remove one first.", nil))
			return
		}

		c := &domain.Competitor{
			BusinessID:      b.ID,
			Rank:            rank,
			ExternalPlaceID: place.ID,
			Name:            place.Name,
			RatingValue:     place.Rating(),
			RatingVotes:     place.Votes(),
			CreatedAt:       s.Now().UTC(),
		}
		if err := uow.InsertCompetitorCtx(ctx, c); err != nil {
			if errs.Is(err, errs.ErrBiz) {
				err = withMessage(err, "This competitor is already added to your business")
			}
			s.fail(w, r, err)
			return
		}
		if err := uow.Commit(); err != nil {
			s.fail(w, r, err)
			return
		}

		s.log.Ctx(ctx).Info("competitor added",
			logging.String("business_id", b.ID),
			logging.String("competitor_place_id", place.ID),
			logging.Int("rank", rank))
		ok(w, envelope{"competitor": envelope{
			"id":                c.ID,
			"rank":              c.Rank,
			"external_place_id": c.ExternalPlaceID,
			"name":              c.Name,
			"rating":            c.RatingValue,
			"totalReviews":      c.RatingVotes,
			"created_at":        c.CreatedAt,
		}})
	}
}

type removeCompetitorRequest struct {
	CompetitorID string `json:"competitor_id"`
}

func (s *Server) removeCompetitor() http.HandlerFunc {
	const op = "api.removeCompetitor"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req removeCompetitorRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := required(op, "competitor_id", req.CompetitorID); err != nil {
			s.fail(w, r, err)
			return
		}
		c, owner, err := s.Repo.CompetitorOwnerCtx(ctx, req.CompetitorID)
		if err != nil {
			s.fail(w, r, withMessage(err, "Competitor not found"))
			return
		}
		if owner != caller(r).UserID {
			s.fail(w, r, errs.NewForbidden(op, "You don't have permission to remove this competitor"))
			return
		}
		if err := s.Repo.DeleteCompetitorCtx(ctx, c.ID); err != nil {
			s.fail(w, r, err)
			return
		}
		s.log.Ctx(ctx).Info("competitor removed",
			logging.String("competitor_id", c.ID),
			logging.String("business_id", c.BusinessID))
		ok(w, envelope{"message": "Competitor removed successfully"})
	}
}
