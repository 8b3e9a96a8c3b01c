package domain

import (
	"context"
	"time"
)

// ClaimRequest selects reviews of one place for analysis.
type ClaimRequest struct {
	ExternalPlaceID string
	ReviewIDs       []string // optional restriction
	Limit           int
	LeaseTTL        time.Duration
	Now             time.Time
	// Owner identifies the run holding the lease. Renew, save and release
	// only touch rows still leased to the same owner.
	Owner string
}

// ReviewRepository defines data access for reviews and their analysis
// columns.
type ReviewRepository interface {
	// ClaimUnanalyzedCtx locks and leases up to Limit unanalyzed reviews.
	// Rows leased by a live concurrent claim are skipped.
	ClaimUnanalyzedCtx(ctx context.Context, req ClaimRequest) ([]Review, error)
	// RenewClaimsCtx moves the lease stamp of reviews still leased to owner
	// to now and returns their ids. Reviews another run took over are left
	// out.
	RenewClaimsCtx(ctx context.Context, owner string, reviewIDs []string, now time.Time) ([]string, error)
	// SaveAnalysesCtx writes every analysis and clears their leases in one
	// transaction; either all rows are written or none. A review that is
	// already analyzed or leased to another owner aborts the batch.
	SaveAnalysesCtx(ctx context.Context, placeID, owner string, analyses []ReviewAnalysis) error
	ReleaseClaimsCtx(ctx context.Context, owner string, reviewIDs []string) error
	ResetAnalysisCtx(ctx context.Context, placeID string, reviewIDs []string) (int64, error)
	CountReviewsCtx(ctx context.Context, placeID string, leaseCutoff time.Time) (ReviewCounts, error)
	SampleUnanalyzedCtx(ctx context.Context, placeID string, limit int) ([]ReviewSample, error)
	LatestReviewsCtx(ctx context.Context, limit int) ([]LatestReview, error)
	InsertCampaignReviewCtx(ctx context.Context, r *CampaignReview) error
}

// PlaceRepository is read-only access to external_places.
type PlaceRepository interface {
	GetPlaceCtx(ctx context.Context, placeID string) (*ExternalPlace, error)
}

// BusinessRepository covers businesses, subscriptions and competitors.
type BusinessRepository interface {
	FindBusinessCtx(ctx context.Context, ownerID, placeID string) (*Business, error)
	CreateBusinessCtx(ctx context.Context, b *Business) error
	OwnsPlaceCtx(ctx context.Context, ownerID, placeID string) (bool, error)
	HasSubscriptionCtx(ctx context.Context, userID string) (bool, error)
	CreateSubscriptionCtx(ctx context.Context, s *Subscription) error

	ListCompetitorsCtx(ctx context.Context, businessID string) ([]CompetitorView, error)
	CompetitorRanksCtx(ctx context.Context, businessID string) ([]int, error)
	InsertCompetitorCtx(ctx context.Context, c *Competitor) error
	// CompetitorOwnerCtx returns the competitor with the owner of its business.
	CompetitorOwnerCtx(ctx context.Context, competitorID string) (*Competitor, string, error)
	DeleteCompetitorCtx(ctx context.Context, competitorID string) error
}

type CampaignRepository interface {
	GetCampaignByShortCodeCtx(ctx context.Context, shortCode string) (*Campaign, error)
	IncrementCampaignCounterCtx(ctx context.Context, campaignID, counter string) error
}

type StaffRepository interface {
	ListStaffCtx(ctx context.Context, placeID string) ([]StaffMember, error)
	GetStaffMemberCtx(ctx context.Context, staffMemberID string) (*StaffMember, error)
	ListStaffMentionsCtx(ctx context.Context, staffMemberID string) ([]StaffMentionDetail, error)
}

// Repository aggregates the repos commonly required by services.
type Repository interface {
	ReviewRepository
	PlaceRepository
	BusinessRepository
	CampaignRepository
	StaffRepository
}
