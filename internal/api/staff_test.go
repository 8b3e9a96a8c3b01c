package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-insights/internal/domain"
)

func staffFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.addBusiness("b1", ownerID, "p1")
	f.store.Staff = []domain.StaffMember{
		{StaffMemberID: "s1", ExternalPlaceID: "p1", Name: "Lucia", TotalMentions: 2, PositiveMentions: 2, PositiveRate: 1},
		{StaffMemberID: "s2", ExternalPlaceID: "p1", Name: "Marco", TotalMentions: 5, NegativeMentions: 5},
		{StaffMemberID: "s9", ExternalPlaceID: "p9", Name: "Elsewhere", TotalMentions: 9},
	}
	f.store.Mentions["s1"] = []domain.StaffMentionDetail{
		{ID: "m1", ReviewID: "r1", DetectedName: "Lucia", Sentiment: "positive", EvidenceSpan: "Lucia was lovely", Provider: "google"},
	}
	return f
}

func TestListStaff(t *testing.T) {
	f := staffFixture(t)

	status, body := f.call(t, http.MethodGet, endpoint("list-staff")+"?external_place_id=p1", ownerToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["total_count"])
	staff := body["staff"].([]any)
	require.Len(t, staff, 2)
	assert.Equal(t, "Marco", staff[0].(map[string]any)["name"], "ordered by total mentions")

	status, body = f.call(t, http.MethodGet, endpoint("list-staff")+"?external_place_id=p1&staff_member_id=s1", ownerToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Lucia", body["staff_member"].(map[string]any)["name"])
	assert.EqualValues(t, 1, body["mentions_count"])
	mention := body["mentions"].([]any)[0].(map[string]any)
	assert.Equal(t, "Lucia was lovely", mention["evidence_span"])
	assert.Equal(t, "google", mention["provider"])
}

func TestListStaffEmptyPlace(t *testing.T) {
	f := newFixture(t)
	f.addBusiness("b1", ownerID, "p1")
	status, body := f.call(t, http.MethodGet, endpoint("list-staff")+"?external_place_id=p1", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["staff"])
	assert.EqualValues(t, 0, body["total_count"])
}

func TestListStaffAccess(t *testing.T) {
	f := staffFixture(t)

	status, _ := f.call(t, http.MethodGet, endpoint("list-staff"), ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := f.call(t, http.MethodGet, endpoint("list-staff")+"?external_place_id=p1", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, msgNotOwner, body["error"])

	// a member of another place is not visible through p1
	status, body = f.call(t, http.MethodGet, endpoint("list-staff")+"?external_place_id=p1&staff_member_id=s9", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Staff member not found", body["error"])

	status, _ = f.call(t, http.MethodGet, endpoint("list-staff")+"?external_place_id=p9", serviceToken, nil)
	assert.Equal(t, http.StatusOK, status)
}
