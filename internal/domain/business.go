package domain

import "time"

const (
	PlanTrial         = "trial"
	SubscriptionTrial = "trial"
	TrialPeriod       = 14 * 24 * time.Hour
	MaxCompetitors    = 4
	CampaignActive    = "active"
	ResolutionPending = "pending"
	DefaultAuthorName = "Anonymous"
)

// Business links an owner to the place they manage.
type Business struct {
	ID              string
	OwnerUserID     string
	ExternalPlaceID string
	Plan            string
	CreatedAt       time.Time
}

type Subscription struct {
	ID          string
	UserID      string
	Status      string
	TrialEndsAt *time.Time
	CreatedAt   time.Time
}

// Competitor is a row of business_competitors_fixed.
type Competitor struct {
	ID              string
	BusinessID      string
	Rank            int
	ExternalPlaceID string
	Name            string
	RatingValue     *float64
	RatingVotes     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CompetitorView is a competitor enriched with its place data, as listed to
// the owner.
type CompetitorView struct {
	Competitor
	Place *ExternalPlace
}

// FreeRank returns the lowest rank in 1..MaxCompetitors not in taken, or 0
// when every slot is used.
func FreeRank(taken []int) int {
	used := make(map[int]bool, len(taken))
	for _, r := range taken {
		used[r] = true
	}
	for r := 1; r <= MaxCompetitors; r++ {
		if !used[r] {
			return r
		}
	}
	return 0
}
