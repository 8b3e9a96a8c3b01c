package analyzer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"review-insights/internal/constants"
	"review-insights/internal/domain"
	errs "review-insights/pkg/errors"
)

// SchemaName is the structured output name sent to the model.
const SchemaName = "ReviewsBatchAnalysis"

//go:embed schema/reviews_batch_analysis.json
var batchSchema []byte

// BatchSchema returns the JSON schema of a batch response.
func BatchSchema() json.RawMessage { return json.RawMessage(batchSchema) }

type wireBatch struct {
	Analyses *[]wireAnalysis `json:"analyses"`
}

type wireAnalysis struct {
	ReviewID         *string      `json:"review_id"`
	Language         *string      `json:"language"`
	Sentiment        *string      `json:"sentiment"`
	OverallScore     *float64     `json:"overall_score"`
	Confidence       *float64     `json:"overall_sentiment_confidence"`
	GapToFive        *bool        `json:"gap_to_five"`
	GapReasons       []string     `json:"gap_reasons"`
	CriticalFlags    []string     `json:"critical_flags"`
	ExecutiveSummary *string      `json:"executive_summary"`
	ActionItems      []string     `json:"action_items"`
	StaffMentions    []wireStaff  `json:"staff_mentions"`
	Aspects          []wireAspect `json:"aspects"`
}

type wireStaff struct {
	DetectedName string `json:"detected_name"`
	Role         string `json:"role"`
	Sentiment    string `json:"sentiment"`
	EvidenceSpan string `json:"evidence_span"`
}

type wireAspect struct {
	Aspect           string   `json:"aspect"`
	SubAspect        string   `json:"sub_aspect"`
	Sentiment        string   `json:"sentiment"`
	EvidenceSpans    []string `json:"evidence_spans"`
	Severity         *float64 `json:"severity"`
	GapToFiveContrib *float64 `json:"gap_to_five_contrib"`
}

// violations collects every problem found in one response.
type violations []string

func (v *violations) addf(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

// ParseBatch decodes and validates a model response for a batch whose review
// ids are batchIDs. Any violation rejects the whole response with a
// ValidationError; nothing is coerced or clamped.
func ParseBatch(content string, batchIDs []string) ([]domain.ReviewAnalysis, error) {
	const op = "analyzer.ParseBatch"

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()
	var wb wireBatch
	if err := dec.Decode(&wb); err != nil {
		return nil, errs.NewValidation(op, "response is not a valid batch document", err)
	}
	if dec.More() {
		return nil, errs.NewValidation(op, "trailing data after batch document", nil)
	}
	if wb.Analyses == nil {
		return nil, errs.NewValidation(op, "missing analyses array", nil)
	}

	known := make(map[string]bool, len(batchIDs))
	for _, id := range batchIDs {
		known[id] = true
	}
	seen := make(map[string]bool, len(*wb.Analyses))

	var bad violations
	out := make([]domain.ReviewAnalysis, 0, len(*wb.Analyses))
	for i, w := range *wb.Analyses {
		at := fmt.Sprintf("analyses[%d]", i)
		a, ok := convert(at, w, &bad)
		if !ok {
			continue
		}
		switch {
		case !known[a.ReviewID]:
			bad.addf("%s.review_id %q is not part of the batch", at, a.ReviewID)
			continue
		case seen[a.ReviewID]:
			bad.addf("%s.review_id %q appears twice", at, a.ReviewID)
			continue
		}
		seen[a.ReviewID] = true
		out = append(out, a)
	}
	if len(bad) > 0 {
		return nil, errs.NewValidation(op, strings.Join(bad, "; "), nil)
	}
	return out, nil
}

func convert(at string, w wireAnalysis, bad *violations) (domain.ReviewAnalysis, bool) {
	before := len(*bad)
	var a domain.ReviewAnalysis

	if w.ReviewID == nil || strings.TrimSpace(*w.ReviewID) == "" {
		bad.addf("%s.review_id is required", at)
	} else {
		a.ReviewID = *w.ReviewID
	}
	if w.Language == nil {
		bad.addf("%s.language is required", at)
	} else {
		a.Language = *w.Language
	}
	if w.Sentiment == nil || !domain.Sentiment(*w.Sentiment).Valid() {
		bad.addf("%s.sentiment must be positive, neutral or negative", at)
	} else {
		a.Sentiment = domain.Sentiment(*w.Sentiment)
	}
	a.OverallScore = unit(at+".overall_score", w.OverallScore, bad)
	a.OverallSentimentConfidence = unit(at+".overall_sentiment_confidence", w.Confidence, bad)
	if w.GapToFive == nil {
		bad.addf("%s.gap_to_five is required", at)
	} else {
		a.GapToFive = *w.GapToFive
	}
	if w.ExecutiveSummary == nil {
		bad.addf("%s.executive_summary is required", at)
	} else if n := utf8.RuneCountInString(*w.ExecutiveSummary); n > constants.ExecutiveSummaryMaxChars {
		bad.addf("%s.executive_summary has %d characters, max %d", at, n, constants.ExecutiveSummaryMaxChars)
	} else {
		a.ExecutiveSummary = *w.ExecutiveSummary
	}

	a.GapReasons = nonNil(w.GapReasons)
	a.ActionItems = nonNil(w.ActionItems)

	a.CriticalFlags = make([]domain.CriticalFlag, 0, len(w.CriticalFlags))
	for j, f := range w.CriticalFlags {
		if !domain.CriticalFlag(f).Valid() {
			bad.addf("%s.critical_flags[%d] %q is not a known flag", at, j, f)
			continue
		}
		a.CriticalFlags = append(a.CriticalFlags, domain.CriticalFlag(f))
	}

	a.StaffMentions = make([]domain.StaffMention, 0, len(w.StaffMentions))
	for j, s := range w.StaffMentions {
		if !domain.Sentiment(s.Sentiment).Valid() {
			bad.addf("%s.staff_mentions[%d].sentiment %q is invalid", at, j, s.Sentiment)
			continue
		}
		a.StaffMentions = append(a.StaffMentions, domain.StaffMention{
			DetectedName: s.DetectedName,
			Role:         s.Role,
			Sentiment:    domain.Sentiment(s.Sentiment),
			EvidenceSpan: s.EvidenceSpan,
		})
	}

	a.Aspects = make([]domain.Aspect, 0, len(w.Aspects))
	for j, asp := range w.Aspects {
		path := fmt.Sprintf("%s.aspects[%d]", at, j)
		n := len(*bad)
		if strings.TrimSpace(asp.Aspect) == "" {
			bad.addf("%s.aspect is required", path)
		}
		if !domain.Sentiment(asp.Sentiment).Valid() {
			bad.addf("%s.sentiment %q is invalid", path, asp.Sentiment)
		}
		sev := 0
		switch {
		case asp.Severity == nil:
			bad.addf("%s.severity is required", path)
		case *asp.Severity != math.Trunc(*asp.Severity) ||
			*asp.Severity < constants.AspectSeverityMin || *asp.Severity > constants.AspectSeverityMax:
			bad.addf("%s.severity %v must be an integer in [%d,%d]", path, *asp.Severity,
				constants.AspectSeverityMin, constants.AspectSeverityMax)
		default:
			sev = int(*asp.Severity)
		}
		contrib := unit(path+".gap_to_five_contrib", asp.GapToFiveContrib, bad)
		if len(*bad) > n {
			continue
		}
		a.Aspects = append(a.Aspects, domain.Aspect{
			Aspect:           asp.Aspect,
			SubAspect:        asp.SubAspect,
			Sentiment:        domain.Sentiment(asp.Sentiment),
			EvidenceSpans:    nonNil(asp.EvidenceSpans),
			Severity:         sev,
			GapToFiveContrib: contrib,
		})
	}
	return a, len(*bad) == before
}

// unit validates a required number in [0,1].
func unit(path string, v *float64, bad *violations) float64 {
	if v == nil {
		bad.addf("%s is required", path)
		return 0
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		bad.addf("%s %v is outside [0,1]", path, *v)
		return 0
	}
	return *v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
