package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

// FindBusinessCtx returns the owner's business on a place, or nil when there
// is none.
func (q *queries) FindBusinessCtx(ctx context.Context, ownerID, placeID string) (*domain.Business, error) {
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	var b domain.Business
	var plan sql.NullString
	var created sql.NullTime
	err := q.queryRow(ctx, `SELECT id, owner_user_id, external_place_id, plan, created_at
	                        FROM businesses WHERE owner_user_id = ? AND external_place_id = ?
	                        ORDER BY created_at LIMIT 1`, ownerID, placeID).
		Scan(&b.ID, &b.OwnerUserID, &b.ExternalPlaceID, &plan, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.FindBusinessCtx", "failed to load business", err)
	}
	b.Plan, b.CreatedAt = plan.String, created.Time
	return &b, nil
}

func (q *queries) CreateBusinessCtx(ctx context.Context, b *domain.Business) error {
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, `INSERT INTO businesses (id, owner_user_id, external_place_id, plan, created_at)
	                       VALUES (?, ?, ?, ?, ?)`, b.ID, b.OwnerUserID, b.ExternalPlaceID, b.Plan, b.CreatedAt)
	if err != nil {
		return errs.NewDB("database.CreateBusinessCtx", "failed to insert business", err)
	}
	return nil
}

// OwnsPlaceCtx reports whether ownerID has a business on placeID.
func (q *queries) OwnsPlaceCtx(ctx context.Context, ownerID, placeID string) (bool, error) {
	b, err := q.FindBusinessCtx(ctx, ownerID, placeID)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

func (q *queries) HasSubscriptionCtx(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return false, errs.NewDB("database.HasSubscriptionCtx", "failed to query subscriptions", err)
	}
	return n > 0, nil
}

func (q *queries) CreateSubscriptionCtx(ctx context.Context, s *domain.Subscription) error {
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, `INSERT INTO subscriptions (id, user_id, status, trial_ends_at, created_at)
	                       VALUES (?, ?, ?, ?, ?)`, s.ID, s.UserID, s.Status, s.TrialEndsAt, s.CreatedAt)
	if err != nil {
		return errs.NewDB("database.CreateSubscriptionCtx", "failed to insert subscription", err)
	}
	return nil
}
