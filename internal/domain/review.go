package domain

import (
	"strings"
	"time"
)

// Sentiment is the polarity label the model assigns to a review, an aspect or
// a staff mention.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// CriticalFlag marks issues that need the owner's attention right away.
type CriticalFlag string

const (
	FlagHigiene         CriticalFlag = "higiene"
	FlagIntoxicacion    CriticalFlag = "intoxicacion"
	FlagTratoAgresivo   CriticalFlag = "trato_agresivo"
	FlagFraude          CriticalFlag = "fraude"
	FlagSeguridad       CriticalFlag = "seguridad"
	FlagQuejaRecurrente CriticalFlag = "queja_recurrente"
)

// CriticalFlags lists the closed set accepted from the model.
var CriticalFlags = []CriticalFlag{
	FlagHigiene, FlagIntoxicacion, FlagTratoAgresivo, FlagFraude, FlagSeguridad, FlagQuejaRecurrente,
}

func (f CriticalFlag) Valid() bool {
	for _, c := range CriticalFlags {
		if f == c {
			return true
		}
	}
	return false
}

// Review providers as stored in reviews.provider.
const (
	ProviderGoogle      = "google"
	ProviderTripadvisor = "tripadvisor"
	ProviderCampaign    = "campaign"
	ProviderUnknown     = "unknown"
)

// Review is a row of the reviews table. Analysis columns are nil until the
// batcher writes them.
type Review struct {
	ID                 string
	ExternalPlaceID    string
	Provider           string
	ProviderReviewID   string
	AuthorName         string
	RatingValue        *float64
	ReviewText         string
	OriginalReviewText string
	PostedAt           *time.Time
	OwnerAnswer        string
	ReviewURL          string

	Sentiment         *string
	OverallScore      *float64
	AnalysisClaimedAt *time.Time
	AnalysisClaimedBy string
	CreatedAt         time.Time
}

// Text returns the review body, falling back to the original-language text.
func (r Review) Text() string {
	if t := strings.TrimSpace(r.ReviewText); t != "" {
		return t
	}
	return strings.TrimSpace(r.OriginalReviewText)
}

// Analyzed reports whether the review already carries a sentiment.
func (r Review) Analyzed() bool { return r.Sentiment != nil }

// Aspect is one aspect-based finding inside a review.
type Aspect struct {
	Aspect           string    `json:"aspect"`
	SubAspect        string    `json:"sub_aspect"`
	Sentiment        Sentiment `json:"sentiment"`
	EvidenceSpans    []string  `json:"evidence_spans"`
	Severity         int       `json:"severity"`
	GapToFiveContrib float64   `json:"gap_to_five_contrib"`
}

type StaffMention struct {
	DetectedName string    `json:"detected_name"`
	Role         string    `json:"role"`
	Sentiment    Sentiment `json:"sentiment"`
	EvidenceSpan string    `json:"evidence_span"`
}

// ReviewAnalysis holds everything written back onto a review after a
// successful batch.
type ReviewAnalysis struct {
	ReviewID                   string         `json:"review_id"`
	Language                   string         `json:"language"`
	Sentiment                  Sentiment      `json:"sentiment"`
	OverallScore               float64        `json:"overall_score"`
	OverallSentimentConfidence float64        `json:"overall_sentiment_confidence"`
	GapToFive                  bool           `json:"gap_to_five"`
	GapReasons                 []string       `json:"gap_reasons"`
	CriticalFlags              []CriticalFlag `json:"critical_flags"`
	ExecutiveSummary           string         `json:"executive_summary"`
	ActionItems                []string       `json:"action_items"`
	StaffMentions              []StaffMention `json:"staff_mentions"`
	Aspects                    []Aspect       `json:"aspects"`
}

// FlagStrings returns CriticalFlags as plain strings for storage.
func (a ReviewAnalysis) FlagStrings() []string {
	out := make([]string, len(a.CriticalFlags))
	for i, f := range a.CriticalFlags {
		out[i] = string(f)
	}
	return out
}

// ReviewCounts is the per place breakdown used by diagnostics.
type ReviewCounts struct {
	Total      int
	Unanalyzed int
	Leased     int
}

// ReviewSample is a short description of an unanalyzed review.
type ReviewSample struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	TextLength int        `json:"text_length"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
}

// LatestReview is a review row with its analysis headline, for the CLI check.
type LatestReview struct {
	ID              string
	ExternalPlaceID string
	Provider        string
	RatingValue     *float64
	ReviewText      string
	Sentiment       *string
	OverallScore    *float64
	PostedAt        *time.Time
}
