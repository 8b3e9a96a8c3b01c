package domain

import "time"

// Campaign is a row of review_campaigns joined with the business it belongs
// to.
type Campaign struct {
	ID                    string
	BusinessID            string
	Name                  string
	Status                string
	ShortCode             string
	ViewsCount            int
	InternalFeedbackCount int

	ExternalPlaceID   string
	BusinessName      string
	BusinessLogo      string
	BusinessMainImage string
	BusinessAddress   string
	BusinessCategory  string
}

func (c Campaign) Active() bool { return c.Status == CampaignActive }

// Campaign counters that may be incremented.
const (
	CounterViews            = "views_count"
	CounterInternalFeedback = "internal_feedback_count"
)

// FeedbackContext describes where and when campaign feedback was submitted.
type FeedbackContext struct {
	DeviceType  string    `json:"device_type"`
	UserAgent   string    `json:"user_agent,omitempty"`
	DayOfWeek   string    `json:"day_of_week"`
	TimeOfDay   string    `json:"time_of_day"`
	SubmittedAt time.Time `json:"submitted_at"`
	IsWeekend   bool      `json:"is_weekend"`
}

// CampaignReview is a review submitted through a campaign link.
type CampaignReview struct {
	ID              string
	ExternalPlaceID string
	CampaignID      string
	RatingValue     int
	ReviewText      string
	SelectedAspects []string
	AspectDetails   map[string][]string
	CESScore        *int
	NPSScore        *int
	CustomerEmail   string
	CustomerPhone   string
	AuthorName      string
	Context         FeedbackContext
	PostedAt        time.Time
}
