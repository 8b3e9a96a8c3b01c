package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-insights/internal/domain"
)

func (f *fixture) addCampaign(code, status string) *domain.Campaign {
	c := &domain.Campaign{
		ID: "camp-" + code, BusinessID: "b1", Name: "Spring", Status: status, ShortCode: code,
		ExternalPlaceID: "p1", BusinessName: "Cafe Uno", BusinessLogo: "logo.png", BusinessAddress: "Calle 1",
	}
	f.store.Campaigns[code] = c
	return c
}

func TestGetCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.addCampaign("abc", domain.CampaignActive)

	status, body := f.call(t, http.MethodGet, endpoint("get-campaign")+"?short_code=abc", "", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, map[string]any{"id": "camp-abc", "name": "Spring", "short_code": "abc"}, body["campaign"])
	business := body["business"].(map[string]any)
	assert.Equal(t, "Cafe Uno", business["name"])
	assert.Equal(t, "logo.png", business["logo"])
	assert.Nil(t, business["main_image"])
	assert.Equal(t, 1, c.ViewsCount)
}

func TestGetCampaignErrors(t *testing.T) {
	f := newFixture(t)
	c := f.addCampaign("old", "paused")

	status, body := f.call(t, http.MethodGet, endpoint("get-campaign"), "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing short_code parameter", body["error"])

	status, body = f.call(t, http.MethodGet, endpoint("get-campaign")+"?short_code=old", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Campaign is not active", body["error"])
	assert.Zero(t, c.ViewsCount)
}

func TestSubmitCampaignFeedback(t *testing.T) {
	f := newFixture(t)
	c := f.addCampaign("abc", domain.CampaignActive)

	req := httptest.NewRequest(http.MethodPost, endpoint("submit-campaign-feedback"), strings.NewReader(`{
		"short_code": "abc",
		"rating_value": 2,
		"selected_aspects": ["service"],
		"aspect_details": {"service": ["slow"]},
		"ces_score": 5,
		"review_text": "The waiter ignored us for twenty minutes",
		"customer_email": "ana@example.com"
	}`))
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone) Mobile Safari")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Feedback submitted successfully")

	require.Len(t, f.store.Inserted, 1)
	got := f.store.Inserted[0]
	assert.Equal(t, "p1", got.ExternalPlaceID)
	assert.Equal(t, c.ID, got.CampaignID)
	assert.Equal(t, 2, got.RatingValue)
	assert.Equal(t, "ana", got.AuthorName)
	assert.Equal(t, []string{"service"}, got.SelectedAspects)
	assert.Equal(t, map[string][]string{"service": {"slow"}}, got.AspectDetails)
	require.NotNil(t, got.CESScore)
	assert.Equal(t, 5, *got.CESScore)
	assert.Nil(t, got.NPSScore)
	assert.Equal(t, domain.FeedbackContext{
		DeviceType:  "mobile",
		UserAgent:   "Mozilla/5.0 (iPhone) Mobile Safari",
		DayOfWeek:   "saturday",
		TimeOfDay:   "evening",
		SubmittedAt: f.server.Now().UTC(),
		IsWeekend:   true,
	}, got.Context)
	assert.Equal(t, 1, c.InternalFeedbackCount)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.server.Jobs.Wait(ctx))
	runs := f.analyzer.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "p1", runs[0].ExternalPlaceID)
	assert.Equal(t, []string{got.ID}, runs[0].ReviewIDs)
	assert.Equal(t, 1, runs[0].Limit)
}

func TestSubmitCampaignFeedbackShortTextSkipsAnalysis(t *testing.T) {
	f := newFixture(t)
	f.addCampaign("abc", domain.CampaignActive)

	status, body := f.call(t, http.MethodPost, endpoint("submit-campaign-feedback"), "",
		map[string]any{"short_code": "abc", "rating_value": 5, "review_text": "  great!   "})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["review_id"])
	assert.Equal(t, domain.DefaultAuthorName, f.store.Inserted[0].AuthorName)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.server.Jobs.Wait(ctx))
	assert.Empty(t, f.analyzer.Runs())
}

func TestSubmitCampaignFeedbackErrors(t *testing.T) {
	f := newFixture(t)
	f.addCampaign("abc", domain.CampaignActive)
	f.addCampaign("old", "ended")

	cases := []struct {
		name   string
		body   map[string]any
		status int
		msg    string
	}{
		{"missing code", map[string]any{"rating_value": 4}, http.StatusBadRequest, "Missing required fields: short_code, rating_value"},
		{"missing rating", map[string]any{"short_code": "abc"}, http.StatusBadRequest, "Missing required fields: short_code, rating_value"},
		{"rating too high", map[string]any{"short_code": "abc", "rating_value": 6}, http.StatusBadRequest, "rating_value must be between 1 and 5"},
		{"bad nps", map[string]any{"short_code": "abc", "rating_value": 4, "nps_score": 11}, http.StatusBadRequest, "nps_score must be between 0 and 10"},
		{"unknown campaign", map[string]any{"short_code": "zzz", "rating_value": 4}, http.StatusNotFound, "Campaign not found or inactive"},
		{"inactive campaign", map[string]any{"short_code": "old", "rating_value": 4}, http.StatusNotFound, "Campaign not found or inactive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := f.call(t, http.MethodPost, endpoint("submit-campaign-feedback"), "", tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.msg, body["error"])
		})
	}
	assert.Empty(t, f.store.Inserted)
}

func TestFeedbackContextHelpers(t *testing.T) {
	assert.Equal(t, "unknown", deviceType(""))
	assert.Equal(t, "mobile", deviceType("Android Mobile"))
	assert.Equal(t, "tablet", deviceType("Tablet PC"))
	assert.Equal(t, "desktop", deviceType("Mozilla/5.0 (X11; Linux x86_64)"))

	for hour, want := range map[int]string{0: "night", 5: "night", 6: "morning", 11: "morning", 12: "afternoon", 16: "afternoon", 17: "evening", 21: "evening", 22: "night"} {
		assert.Equal(t, want, timeOfDay(hour), "hour %d", hour)
	}

	wed := feedbackContext("", time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, "wednesday", wed.DayOfWeek)
	assert.Equal(t, "morning", wed.TimeOfDay)
	assert.False(t, wed.IsWeekend)
	sun := feedbackContext("", time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC))
	assert.True(t, sun.IsWeekend)

	assert.Equal(t, "ana", authorName(" ana@example.com "))
	assert.Equal(t, domain.DefaultAuthorName, authorName(""))
	assert.Equal(t, domain.DefaultAuthorName, authorName("@example.com"))
}
