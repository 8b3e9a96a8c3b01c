package database

import (
	"context"
	"database/sql"
	"errors"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

const placeColumns = `id, name, google_place_id, google_cid, tripadvisor_url_path, address, phone, url,
	main_image, logo, category, google_ratings, tripadvisor_ratings, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlace(s rowScanner) (*domain.ExternalPlace, error) {
	var p domain.ExternalPlace
	var name, gid, cid, ta, addr, phone, url, img, logo, cat sql.NullString
	var gr, tr []byte
	var created, updated sql.NullTime
	if err := s.Scan(&p.ID, &name, &gid, &cid, &ta, &addr, &phone, &url, &img, &logo, &cat, &gr, &tr, &created, &updated); err != nil {
		return nil, err
	}
	p.Name, p.GooglePlaceID, p.GoogleCID, p.TripadvisorURLPath = name.String, gid.String, cid.String, ta.String
	p.Address, p.Phone, p.URL, p.MainImage = addr.String, phone.String, url.String, img.String
	p.Logo, p.Category = logo.String, cat.String
	p.GoogleRatings = domain.ParseRatingSnapshot(gr)
	p.TripadvisorRatings = domain.ParseRatingSnapshot(tr)
	p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
	return &p, nil
}

// GetPlaceCtx returns the place or a NotFoundError.
func (q *queries) GetPlaceCtx(ctx context.Context, placeID string) (*domain.ExternalPlace, error) {
	const op = "database.GetPlaceCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	p, err := scanPlace(q.queryRow(ctx, `SELECT `+placeColumns+` FROM external_places WHERE id = ?`, placeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound(op, "external_place", placeID)
	}
	if err != nil {
		return nil, errs.NewDB(op, "failed to load place", err)
	}
	return p, nil
}
