package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryHandlerExposesObservations(t *testing.T) {
	ObserveHTTP("/functions/v1/analyze-reviews", "POST", 200, 12*time.Millisecond)
	ObserveUpstream("openai", "chat", 429, time.Second)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, want := range []string{
		"review_insights_http_requests_total",
		"review_insights_upstream_requests_total",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("reloads_total", "reloads")
	b := r.Counter("reloads_total", "reloads")
	a.Inc()
	b.Inc()
	if got := testutil.ToFloat64(a); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
