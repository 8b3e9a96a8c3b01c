package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

// Rows without posted_at sort last in both dialects.
const reviewOrder = ` ORDER BY posted_at IS NULL, posted_at DESC, id`

// ClaimUnanalyzedCtx locks up to req.Limit unanalyzed reviews of a place
// with FOR UPDATE SKIP LOCKED and stamps analysis_claimed_at and
// analysis_claimed_by. Rows whose lease is younger than req.LeaseTTL are not
// eligible.
func (db *DB) ClaimUnanalyzedCtx(ctx context.Context, req domain.ClaimRequest) ([]domain.Review, error) {
	const op = "database.ClaimUnanalyzedCtx"
	if req.Limit <= 0 {
		return nil, nil
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-req.LeaseTTL)

	var claimed []domain.Review
	err := db.inTx(ctx, op, func(ctx context.Context, tx *Tx) error {
		query := `SELECT id, external_place_id, provider, review_text, original_review_text, posted_at
		          FROM reviews
		          WHERE external_place_id = ? AND sentiment IS NULL
		            AND (analysis_claimed_at IS NULL OR analysis_claimed_at < ?)`
		args := []any{req.ExternalPlaceID, cutoff}
		if len(req.ReviewIDs) > 0 {
			query += ` AND id IN (` + placeholders(len(req.ReviewIDs)) + `)`
			args = append(args, stringArgs(req.ReviewIDs)...)
		}
		query += reviewOrder + ` LIMIT ? FOR UPDATE SKIP LOCKED`
		args = append(args, req.Limit)

		rows, err := tx.query(ctx, query, args...)
		if err != nil {
			return errs.NewDB(op, "failed to select reviews", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r domain.Review
			var provider, text, original sql.NullString
			var posted sql.NullTime
			if err := rows.Scan(&r.ID, &r.ExternalPlaceID, &provider, &text, &original, &posted); err != nil {
				return errs.NewDB(op, "failed to scan review", err)
			}
			r.Provider = provider.String
			r.ReviewText = text.String
			r.OriginalReviewText = original.String
			r.PostedAt = timePtr(posted)
			claimed = append(claimed, r)
		}
		if err := rows.Err(); err != nil {
			return errs.NewDB(op, "failed to iterate reviews", err)
		}
		rows.Close()

		if len(claimed) == 0 {
			return nil
		}
		ids := make([]string, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
			claimed[i].AnalysisClaimedAt = &now
			claimed[i].AnalysisClaimedBy = req.Owner
		}
		update := `UPDATE reviews SET analysis_claimed_at = ?, analysis_claimed_by = ? WHERE id IN (` + placeholders(len(ids)) + `)`
		if _, err := tx.exec(ctx, update, append([]any{now, req.Owner}, stringArgs(ids)...)...); err != nil {
			return errs.NewDB(op, "failed to lease reviews", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RenewClaimsCtx restamps the leases owner still holds among reviewIDs and
// returns those ids.
func (db *DB) RenewClaimsCtx(ctx context.Context, owner string, reviewIDs []string, now time.Time) ([]string, error) {
	const op = "database.RenewClaimsCtx"
	if len(reviewIDs) == 0 {
		return nil, nil
	}
	var held []string
	err := db.inTx(ctx, op, func(ctx context.Context, tx *Tx) error {
		query := `SELECT id FROM reviews
		          WHERE id IN (` + placeholders(len(reviewIDs)) + `)
		            AND sentiment IS NULL AND analysis_claimed_by = ?
		          FOR UPDATE`
		rows, err := tx.query(ctx, query, append(stringArgs(reviewIDs), owner)...)
		if err != nil {
			return errs.NewDB(op, "failed to select leases", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return errs.NewDB(op, "failed to scan lease", err)
			}
			held = append(held, id)
		}
		if err := rows.Err(); err != nil {
			return errs.NewDB(op, "failed to iterate leases", err)
		}
		rows.Close()

		if len(held) == 0 {
			return nil
		}
		update := `UPDATE reviews SET analysis_claimed_at = ? WHERE id IN (` + placeholders(len(held)) + `)`
		if _, err := tx.exec(ctx, update, append([]any{now.UTC()}, stringArgs(held)...)...); err != nil {
			return errs.NewDB(op, "failed to renew leases", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return held, nil
}

// SaveAnalysesCtx writes all analyses of one batch and clears their leases.
// A review that no longer exists, is already analyzed or is leased to
// another owner aborts the whole batch.
func (db *DB) SaveAnalysesCtx(ctx context.Context, placeID, owner string, analyses []domain.ReviewAnalysis) error {
	const op = "database.SaveAnalysesCtx"
	if len(analyses) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return db.inTx(ctx, op, func(ctx context.Context, tx *Tx) error {
		query := `UPDATE reviews SET
		            sentiment = ?, aspects = ?, language = ?, overall_score = ?,
		            overall_sentiment_confidence = ?, gap_to_five = ?, gap_reasons = ?,
		            critical_flags = ?, executive_summary = ?, action_items = ?,
		            staff_mentions = ?, analysis_claimed_at = NULL, analysis_claimed_by = NULL, updated_at = ?
		          WHERE id = ? AND external_place_id = ? AND sentiment IS NULL AND analysis_claimed_by = ?`
		for _, a := range analyses {
			aspects, err := jsonParam(a.Aspects)
			if err != nil {
				return errs.NewDB(op, "failed to encode aspects", err)
			}
			staff, err := jsonParam(a.StaffMentions)
			if err != nil {
				return errs.NewDB(op, "failed to encode staff mentions", err)
			}
			res, err := tx.exec(ctx, query,
				string(a.Sentiment),
				aspects,
				nullIfEmpty(a.Language),
				a.OverallScore,
				a.OverallSentimentConfidence,
				a.GapToFive,
				tx.array(a.GapReasons),
				tx.array(a.FlagStrings()),
				nullIfEmpty(a.ExecutiveSummary),
				tx.array(a.ActionItems),
				staff,
				now,
				a.ReviewID,
				placeID,
				owner,
			)
			if err != nil {
				return errs.NewDB(op, "failed to update review "+a.ReviewID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return errs.NewDB(op, "review "+a.ReviewID+" not found for place or not leased to this run", sql.ErrNoRows)
			}
		}
		return nil
	})
}

// ReleaseClaimsCtx clears the leases owner holds so the reviews can be
// selected again.
func (q *queries) ReleaseClaimsCtx(ctx context.Context, owner string, reviewIDs []string) error {
	if len(reviewIDs) == 0 {
		return nil
	}
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE reviews SET analysis_claimed_at = NULL, analysis_claimed_by = NULL
	          WHERE id IN (` + placeholders(len(reviewIDs)) + `) AND analysis_claimed_by = ?`
	if _, err := q.exec(ctx, query, append(stringArgs(reviewIDs), owner)...); err != nil {
		return errs.NewDB("database.ReleaseClaimsCtx", "failed to release leases", err)
	}
	return nil
}

// ResetAnalysisCtx nulls every analysis column of the given reviews, or of
// the whole place when reviewIDs is empty.
func (q *queries) ResetAnalysisCtx(ctx context.Context, placeID string, reviewIDs []string) (int64, error) {
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE reviews SET
	            sentiment = NULL, aspects = NULL, language = NULL, overall_score = NULL,
	            overall_sentiment_confidence = NULL, gap_to_five = NULL, gap_reasons = NULL,
	            critical_flags = NULL, executive_summary = NULL, action_items = NULL,
	            staff_mentions = NULL, analysis_claimed_at = NULL, analysis_claimed_by = NULL, updated_at = ?
	          WHERE external_place_id = ?`
	args := []any{time.Now().UTC(), placeID}
	if len(reviewIDs) > 0 {
		query += ` AND id IN (` + placeholders(len(reviewIDs)) + `)`
		args = append(args, stringArgs(reviewIDs)...)
	}
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, errs.NewDB("database.ResetAnalysisCtx", "failed to reset analysis", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountReviewsCtx counts all, unanalyzed and currently leased reviews.
func (q *queries) CountReviewsCtx(ctx context.Context, placeID string, leaseCutoff time.Time) (domain.ReviewCounts, error) {
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	var c domain.ReviewCounts
	query := `SELECT COUNT(*),
	                 COALESCE(SUM(CASE WHEN sentiment IS NULL THEN 1 ELSE 0 END), 0),
	                 COALESCE(SUM(CASE WHEN sentiment IS NULL AND analysis_claimed_at >= ? THEN 1 ELSE 0 END), 0)
	          FROM reviews WHERE external_place_id = ?`
	if err := q.queryRow(ctx, query, leaseCutoff, placeID).Scan(&c.Total, &c.Unanalyzed, &c.Leased); err != nil {
		return c, errs.NewDB("database.CountReviewsCtx", "failed to count reviews", err)
	}
	return c, nil
}

// SampleUnanalyzedCtx returns the next reviews a run would pick, without
// leasing them.
func (q *queries) SampleUnanalyzedCtx(ctx context.Context, placeID string, limit int) ([]domain.ReviewSample, error) {
	const op = "database.SampleUnanalyzedCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	rows, err := q.query(ctx, `SELECT id, provider, review_text, original_review_text, posted_at
	                           FROM reviews WHERE external_place_id = ? AND sentiment IS NULL`+reviewOrder+` LIMIT ?`,
		placeID, limit)
	if err != nil {
		return nil, errs.NewDB(op, "failed to query sample", err)
	}
	defer rows.Close()

	var out []domain.ReviewSample
	for rows.Next() {
		var r domain.Review
		var provider, text, original sql.NullString
		var posted sql.NullTime
		if err := rows.Scan(&r.ID, &provider, &text, &original, &posted); err != nil {
			return nil, errs.NewDB(op, "failed to scan sample", err)
		}
		r.ReviewText, r.OriginalReviewText = text.String, original.String
		out = append(out, domain.ReviewSample{
			ID:         r.ID,
			Provider:   provider.String,
			TextLength: len([]rune(r.Text())),
			PostedAt:   timePtr(posted),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "failed to iterate sample", err)
	}
	return out, nil
}

// LatestReviewsCtx lists the most recently imported reviews across places.
func (q *queries) LatestReviewsCtx(ctx context.Context, limit int) ([]domain.LatestReview, error) {
	const op = "database.LatestReviewsCtx"
	ctx, cancel := q.withReadTimeout(ctx)
	defer cancel()

	rows, err := q.query(ctx, `SELECT id, external_place_id, provider, rating_value, review_text, sentiment, overall_score, posted_at
	                           FROM reviews ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errs.NewDB(op, "failed to query reviews", err)
	}
	defer rows.Close()

	var out []domain.LatestReview
	for rows.Next() {
		var r domain.LatestReview
		var provider, text, sentiment sql.NullString
		var rating, score sql.NullFloat64
		var posted sql.NullTime
		if err := rows.Scan(&r.ID, &r.ExternalPlaceID, &provider, &rating, &text, &sentiment, &score, &posted); err != nil {
			return nil, errs.NewDB(op, "failed to scan review", err)
		}
		r.Provider = provider.String
		r.RatingValue = floatPtr(rating)
		r.ReviewText = text.String
		r.Sentiment = strPtr(sentiment)
		r.OverallScore = floatPtr(score)
		r.PostedAt = timePtr(posted)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "failed to iterate reviews", err)
	}
	return out, nil
}

// InsertCampaignReviewCtx stores feedback submitted through a campaign link.
// r.ID is assigned when empty.
func (q *queries) InsertCampaignReviewCtx(ctx context.Context, r *domain.CampaignReview) error {
	const op = "database.InsertCampaignReviewCtx"
	ctx, cancel := q.withWriteTimeout(ctx)
	defer cancel()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var details any
	if r.AspectDetails != nil {
		v, err := jsonParam(r.AspectDetails)
		if err != nil {
			return errs.NewDB(op, "failed to encode aspect details", err)
		}
		details = v
	}
	meta, err := jsonParam(r.Context)
	if err != nil {
		return errs.NewDB(op, "failed to encode context metadata", err)
	}

	query := `INSERT INTO reviews
	          (id, external_place_id, provider, campaign_id, rating_value, review_text,
	           selected_aspects, aspect_details, ces_score, nps_score, customer_email,
	           customer_phone, resolution_status, context_metadata, posted_at, author_name, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.exec(ctx, query,
		r.ID,
		r.ExternalPlaceID,
		domain.ProviderCampaign,
		r.CampaignID,
		r.RatingValue,
		nullIfEmpty(r.ReviewText),
		q.array(r.SelectedAspects),
		details,
		r.CESScore,
		r.NPSScore,
		nullIfEmpty(r.CustomerEmail),
		nullIfEmpty(r.CustomerPhone),
		domain.ResolutionPending,
		meta,
		r.PostedAt,
		r.AuthorName,
		r.PostedAt,
	)
	if err != nil {
		return errs.NewDB(op, "failed to insert review", err)
	}
	return nil
}
