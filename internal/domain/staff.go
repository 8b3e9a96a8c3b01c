package domain

import "time"

// StaffMember is a row of the staff_performance_stats view.
type StaffMember struct {
	StaffMemberID      string     `json:"staff_member_id"`
	ExternalPlaceID    string     `json:"external_place_id"`
	Name               string     `json:"name"`
	Role               *string    `json:"role"`
	NameVariations     []string   `json:"name_variations"`
	TotalMentions      int        `json:"total_mentions"`
	PositiveMentions   int        `json:"positive_mentions"`
	NeutralMentions    int        `json:"neutral_mentions"`
	NegativeMentions   int        `json:"negative_mentions"`
	PositiveRate       float64    `json:"positive_rate"`
	LastMentionDate    *time.Time `json:"last_mention_date"`
	FirstSeenAt        *time.Time `json:"first_seen_at"`
	UniqueReviewsCount int        `json:"unique_reviews_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// StaffMentionDetail is one mention joined with the review it came from.
type StaffMentionDetail struct {
	ID           string     `json:"id"`
	ReviewID     string     `json:"review_id"`
	DetectedName string     `json:"detected_name"`
	Role         *string    `json:"role"`
	Sentiment    string     `json:"sentiment"`
	EvidenceSpan string     `json:"evidence_span"`
	CreatedAt    time.Time  `json:"created_at"`
	RatingValue  *float64   `json:"rating_value"`
	AuthorName   *string    `json:"author_name"`
	PostedAt     *time.Time `json:"posted_at"`
	Provider     string     `json:"provider"`
	ReviewURL    *string    `json:"review_url"`
}
