package database

import (
	"context"
	"database/sql"
	"errors"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

const staffColumns = `staff_member_id, external_place_id, name, role, name_variations, total_mentions,
	positive_mentions, neutral_mentions, negative_mentions, positive_rate, last_mention_date,
	first_seen_at, unique_reviews_count, created_at, updated_at`

func (q *queries) scanStaff(s rowScanner) (*domain.StaffMember, error) {
	var m domain.StaffMember
	var role sql.NullString
	var total, pos, neu, neg, uniq sql.NullInt64
	var rate sql.NullFloat64
	var last, first, created, updated sql.NullTime
	if err := s.Scan(&m.StaffMemberID, &m.ExternalPlaceID, &m.Name, &role, q.arrayDest(&m.NameVariations),
		&total, &pos, &neu, &neg, &rate, &last, &first, &uniq, &created, &updated); err != nil {
		return nil, err
	}
	m.Role = strPtr(role)
	m.TotalMentions, m.PositiveMentions = int(total.Int64), int(pos.Int64)
	m.NeutralMentions, m.NegativeMentions = int(neu.Int64), int(neg.Int64)
	m.PositiveRate = rate.Float64
	m.LastMentionDate, m.FirstSeenAt = timePtr(last), timePtr(first)
	m.UniqueReviewsCount = int(uniq.Int64)
	m.CreatedAt, m.UpdatedAt = created.Time, updated.Time
	if m.NameVariations == nil {
		m.NameVariations = []string{}
	}
	return &m, nil
}

// ListStaffCtx lists the staff stats of a place, most mentioned first.
func (q *queries) ListStaffCtx(ctx context.Context, placeID string) ([]domain.StaffMember, error) {
	const op = "database.ListStaffCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	rows, err := q.query(ctx, `SELECT `+staffColumns+` FROM staff_performance_stats
	                           WHERE external_place_id = ? ORDER BY total_mentions DESC`, placeID)
	if err != nil {
		return nil, errs.NewDB(op, "failed to query staff", err)
	}
	defer rows.Close()

	out := []domain.StaffMember{}
	for rows.Next() {
		m, err := q.scanStaff(rows)
		if err != nil {
			return nil, errs.NewDB(op, "failed to scan staff member", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "failed to iterate staff", err)
	}
	return out, nil
}

func (q *queries) GetStaffMemberCtx(ctx context.Context, staffMemberID string) (*domain.StaffMember, error) {
	const op = "database.GetStaffMemberCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	m, err := q.scanStaff(q.queryRow(ctx, `SELECT `+staffColumns+` FROM staff_performance_stats WHERE staff_member_id = ?`, staffMemberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound(op, "staff_member", staffMemberID)
	}
	if err != nil {
		return nil, errs.NewDB(op, "failed to load staff member", err)
	}
	return m, nil
}

// ListStaffMentionsCtx returns the mentions of a staff member joined with
// their reviews, newest first.
func (q *queries) ListStaffMentionsCtx(ctx context.Context, staffMemberID string) ([]domain.StaffMentionDetail, error) {
	const op = "database.ListStaffMentionsCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	rows, err := q.query(ctx, `SELECT m.id, m.review_id, m.detected_name, m.role, m.sentiment, m.evidence_span, m.created_at,
	                                  r.rating_value, r.author_name, r.posted_at, r.provider, r.review_url
	                           FROM staff_mentions m
	                           JOIN reviews r ON r.id = m.review_id
	                           WHERE m.staff_member_id = ?
	                           ORDER BY m.created_at DESC`, staffMemberID)
	if err != nil {
		return nil, errs.NewDB(op, "failed to query mentions", err)
	}
	defer rows.Close()

	out := []domain.StaffMentionDetail{}
	for rows.Next() {
		var d domain.StaffMentionDetail
		var role, sentiment, span, author, provider, url sql.NullString
		var rating sql.NullFloat64
		var posted sql.NullTime
		if err := rows.Scan(&d.ID, &d.ReviewID, &d.DetectedName, &role, &sentiment, &span, &d.CreatedAt,
			&rating, &author, &posted, &provider, &url); err != nil {
			return nil, errs.NewDB(op, "failed to scan mention", err)
		}
		d.Role = strPtr(role)
		d.Sentiment, d.EvidenceSpan = sentiment.String, span.String
		d.RatingValue = floatPtr(rating)
		d.AuthorName = strPtr(author)
		d.PostedAt = timePtr(posted)
		d.Provider = provider.String
		if d.Provider == "" {
			d.Provider = domain.ProviderUnknown
		}
		d.ReviewURL = strPtr(url)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "failed to iterate mentions", err)
	}
	return out, nil
}
