package api

import (
	"net/http"
	"strings"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

// listStaff lists the staff stats of a place, or one member with its
// mentions when staff_member_id is given.
func (s *Server) listStaff() http.HandlerFunc {
	const op = "api.listStaff"
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()
		placeID := strings.TrimSpace(q.Get("external_place_id"))
		staffID := strings.TrimSpace(q.Get("staff_member_id"))
		if err := required(op, "external_place_id", placeID); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.authorizePlace(r, placeID); err != nil {
			s.fail(w, r, err)
			return
		}

		if staffID == "" {
			staff, err := s.Repo.ListStaffCtx(ctx, placeID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if staff == nil {
				staff = []domain.StaffMember{}
			}
			ok(w, envelope{"staff": staff, "total_count": len(staff)})
			return
		}

		member, err := s.Repo.GetStaffMemberCtx(ctx, staffID)
		if err == nil && member.ExternalPlaceID != placeID {
			err = errs.NewNotFound(op, "staff_member", staffID)
		}
		if err != nil {
			s.fail(w, r, withMessage(err, "Staff member not found"))
			return
		}
		mentions, err := s.Repo.ListStaffMentionsCtx(ctx, staffID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if mentions == nil {
			mentions = []domain.StaffMentionDetail{}
		}
		ok(w, envelope{"staff_member": member, "mentions": mentions, "mentions_count": len(mentions)})
	}
}

// authorizePlace lets service identities through and requires every other
// caller to own a business on placeID.
func (s *Server) authorizePlace(r *http.Request, placeID string) error {
	if caller(r).Service {
		return nil
	}
	return s.requireOwner(r, placeID)
}

// requireOwner requires the caller, service identities included, to own a
// business on placeID.
func (s *Server) requireOwner(r *http.Request, placeID string) error {
	id := caller(r)
	owns, err := s.Repo.OwnsPlaceCtx(r.Context(), id.UserID, placeID)
	if err != nil {
		return err
	}
	if !owns {
		return errs.NewForbidden("api.requireOwner", msgNotOwner)
	}
	return nil
}
