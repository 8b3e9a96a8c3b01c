package domain

import (
	"encoding/json"
	"time"
)

// RatingSnapshot is the JSON rating summary stored per provider on a place.
type RatingSnapshot struct {
	RatingValue *float64 `json:"rating_value"`
	VotesCount  *int     `json:"votes_count"`
	RatingMax   *int     `json:"rating_max,omitempty"`
}

// ParseRatingSnapshot decodes a stored snapshot; empty or malformed input
// yields an empty snapshot.
func ParseRatingSnapshot(raw []byte) RatingSnapshot {
	var s RatingSnapshot
	if len(raw) == 0 {
		return s
	}
	_ = json.Unmarshal(raw, &s)
	return s
}

// ExternalPlace is a place imported from Google and/or TripAdvisor.
type ExternalPlace struct {
	ID                 string
	Name               string
	GooglePlaceID      string
	GoogleCID          string
	TripadvisorURLPath string
	Address            string
	Phone              string
	URL                string
	MainImage          string
	Logo               string
	Category           string
	GoogleRatings      RatingSnapshot
	TripadvisorRatings RatingSnapshot
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Rating prefers the Google rating and falls back to TripAdvisor.
func (p ExternalPlace) Rating() *float64 {
	if p.GoogleRatings.RatingValue != nil {
		return p.GoogleRatings.RatingValue
	}
	return p.TripadvisorRatings.RatingValue
}

// Votes sums the vote counts of both providers.
func (p ExternalPlace) Votes() int {
	total := 0
	if v := p.GoogleRatings.VotesCount; v != nil {
		total += *v
	}
	if v := p.TripadvisorRatings.VotesCount; v != nil {
		total += *v
	}
	return total
}
