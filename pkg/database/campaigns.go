package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

// GetCampaignByShortCodeCtx loads a campaign with its business's place data.
func (q *queries) GetCampaignByShortCodeCtx(ctx context.Context, shortCode string) (*domain.Campaign, error) {
	const op = "database.GetCampaignByShortCodeCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	var c domain.Campaign
	var name, status, placeName, logo, img, addr, cat sql.NullString
	var views, feedback sql.NullInt64
	err := q.queryRow(ctx, `SELECT rc.id, rc.business_id, rc.name, rc.status, rc.short_code,
	                               rc.views_count, rc.internal_feedback_count,
	                               b.external_place_id, p.name, p.logo, p.main_image, p.address, p.category
	                        FROM review_campaigns rc
	                        JOIN businesses b ON b.id = rc.business_id
	                        LEFT JOIN external_places p ON p.id = b.external_place_id
	                        WHERE rc.short_code = ?`, shortCode).
		Scan(&c.ID, &c.BusinessID, &name, &status, &c.ShortCode, &views, &feedback,
			&c.ExternalPlaceID, &placeName, &logo, &img, &addr, &cat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound(op, "campaign", shortCode)
	}
	if err != nil {
		return nil, errs.NewDB(op, "failed to load campaign", err)
	}
	c.Name, c.Status = name.String, status.String
	c.ViewsCount, c.InternalFeedbackCount = int(views.Int64), int(feedback.Int64)
	c.BusinessName, c.BusinessLogo, c.BusinessMainImage = placeName.String, logo.String, img.String
	c.BusinessAddress, c.BusinessCategory = addr.String, cat.String
	return &c, nil
}

// IncrementCampaignCounterCtx bumps one of the campaign counters by one.
func (q *queries) IncrementCampaignCounterCtx(ctx context.Context, campaignID, counter string) error {
	switch counter {
	case domain.CounterViews, domain.CounterInternalFeedback:
	default:
		return errs.NewValidation("database.IncrementCampaignCounterCtx", fmt.Sprintf("unknown counter %q", counter), nil)
	}
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE review_campaigns SET ` + counter + ` = COALESCE(` + counter + `, 0) + 1 WHERE id = ?`
	if _, err := q.exec(ctx, query, campaignID); err != nil {
		return errs.NewDB("database.IncrementCampaignCounterCtx", "failed to increment "+counter, err)
	}
	return nil
}
