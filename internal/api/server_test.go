package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-insights/pkg/logging"
)

func TestPreflightSkipsAuth(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, endpoint("link-business"), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "authorization")
}

func TestAuthenticationRequired(t *testing.T) {
	f := newFixture(t)
	for _, token := range []string{"", "unknown"} {
		status, body := f.call(t, http.MethodPost, endpoint("list-competitors"), token, map[string]any{"external_place_id": "p1"})
		assert.Equal(t, http.StatusUnauthorized, status, "token %q", token)
		assert.Equal(t, false, body["ok"])
		assert.NotEmpty(t, body["error"])
	}
}

func TestPublicRoutesNeedNoToken(t *testing.T) {
	f := newFixture(t)
	status, body := f.call(t, http.MethodGet, endpoint("get-campaign")+"?short_code=nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Campaign not found", body["error"])
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, endpoint("get-campaign"), nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, endpoint("get-campaign"), nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)
	status, body := f.call(t, http.MethodPost, endpoint("does-not-exist"), ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["ok"])

	status, _ = f.call(t, http.MethodDelete, endpoint("link-business"), ownerToken, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestInvalidJSONBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, endpoint("link-business"), strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestRejectedRequestLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriterLogger(&buf, logging.LogConfig{Level: logging.LevelDebug, Format: "json"})
	f := newFixture(t, func(d *Deps) { d.Log = log })
	f.addBusiness("b1", ownerID, "p1")

	status, _ := f.call(t, http.MethodPost, endpoint("reanalyze-reviews"), otherToken, map[string]any{"external_place_id": "p1"})
	require.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, buf.String(), `"msg":"request rejected"`)
	assert.Contains(t, buf.String(), `"op":"api.requireOwner"`)
}
