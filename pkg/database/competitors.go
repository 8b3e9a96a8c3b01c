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

// ListCompetitorsCtx returns the competitors of a business ordered by rank,
// joined with their place rows when those still exist.
func (q *queries) ListCompetitorsCtx(ctx context.Context, businessID string) ([]domain.CompetitorView, error) {
	const op = "database.ListCompetitorsCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	rows, err := q.query(ctx, `SELECT c.id, c.business_id, c.`+q.ident("rank")+`, c.competitor_external_place_id, c.competitor_name,
	                                  c.competitor_rating_value, c.competitor_rating_votes, c.created_at, c.updated_at,
	                                  p.id, p.google_place_id, p.tripadvisor_url_path, p.address, p.phone, p.url, p.main_image
	                           FROM business_competitors_fixed c
	                           LEFT JOIN external_places p ON p.id = c.competitor_external_place_id
	                           WHERE c.business_id = ?
	                           ORDER BY c.`+q.ident("rank")+` ASC`, businessID)
	if err != nil {
		return nil, errs.NewDB(op, "failed to query competitors", err)
	}
	defer rows.Close()

	var out []domain.CompetitorView
	for rows.Next() {
		var v domain.CompetitorView
		var name sql.NullString
		var rating sql.NullFloat64
		var votes sql.NullInt64
		var created, updated sql.NullTime
		var pid, gid, ta, addr, phone, url, img sql.NullString
		if err := rows.Scan(&v.ID, &v.BusinessID, &v.Rank, &v.ExternalPlaceID, &name,
			&rating, &votes, &created, &updated,
			&pid, &gid, &ta, &addr, &phone, &url, &img); err != nil {
			return nil, errs.NewDB(op, "failed to scan competitor", err)
		}
		v.Name = name.String
		v.RatingValue = floatPtr(rating)
		v.RatingVotes = int(votes.Int64)
		v.CreatedAt, v.UpdatedAt = created.Time, updated.Time
		if pid.Valid {
			v.Place = &domain.ExternalPlace{
				ID:                 pid.String,
				GooglePlaceID:      gid.String,
				TripadvisorURLPath: ta.String,
				Address:            addr.String,
				Phone:              phone.String,
				URL:                url.String,
				MainImage:          img.String,
			}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "failed to iterate competitors", err)
	}
	return out, nil
}

// CompetitorRanksCtx returns the ranks in use, ascending.
func (q *queries) CompetitorRanksCtx(ctx context.Context, businessID string) ([]int, error) {
	const op = "database.CompetitorRanksCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	rows, err := q.query(ctx, `SELECT `+q.ident("rank")+` FROM business_competitors_fixed WHERE business_id = ? ORDER BY `+q.ident("rank")+` ASC`, businessID)
	if err != nil {
		return nil, errs.NewDB(op, "failed to query ranks", err)
	}
	defer rows.Close()

	var ranks []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, errs.NewDB(op, "failed to scan rank", err)
		}
		ranks = append(ranks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "failed to iterate ranks", err)
	}
	return ranks, nil
}

// InsertCompetitorCtx inserts c. A duplicate place or rank for the business
// is reported as a BizError wrapping the driver error.
func (q *queries) InsertCompetitorCtx(ctx context.Context, c *domain.Competitor) error {
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	_, err := q.exec(ctx, `INSERT INTO business_competitors_fixed
	                       (id, business_id, `+q.ident("rank")+`, competitor_external_place_id, competitor_name,
	                        competitor_rating_value, competitor_rating_votes, created_at, updated_at)
	                       VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BusinessID, c.Rank, c.ExternalPlaceID, c.Name, c.RatingValue, c.RatingVotes, c.CreatedAt, c.UpdatedAt)
	if IsUniqueViolation(err) {
		return errs.NewBiz("database.InsertCompetitorCtx", "competitor already added", err)
	}
	if err != nil {
		return errs.NewDB("database.InsertCompetitorCtx", "failed to insert competitor", err)
	}
	return nil
}

// CompetitorOwnerCtx loads a competitor and the owner of its business.
func (q *queries) CompetitorOwnerCtx(ctx context.Context, competitorID string) (*domain.Competitor, string, error) {
	const op = "database.CompetitorOwnerCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	var c domain.Competitor
	var owner sql.NullString
	var name sql.NullString
	err := q.queryRow(ctx, `SELECT c.id, c.business_id, c.`+q.ident("rank")+`, c.competitor_external_place_id, c.competitor_name, b.owner_user_id
	                        FROM business_competitors_fixed c
	                        JOIN businesses b ON b.id = c.business_id
	                        WHERE c.id = ?`, competitorID).
		Scan(&c.ID, &c.BusinessID, &c.Rank, &c.ExternalPlaceID, &name, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errs.NewNotFound(op, "competitor", competitorID)
	}
	if err != nil {
		return nil, "", errs.NewDB(op, "failed to load competitor", err)
	}
	c.Name = name.String
	return &c, owner.String, nil
}

func (q *queries) DeleteCompetitorCtx(ctx context.Context, competitorID string) error {
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	if _, err := q.exec(ctx, `DELETE FROM business_competitors_fixed WHERE id = ?`, competitorID); err != nil {
		return errs.NewDB("database.DeleteCompetitorCtx", "failed to delete competitor", err)
	}
	return nil
}
