package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(name string, s Status) Checker {
	return NewCheckFunc(name, func(context.Context) ComponentHealth { return ComponentHealth{Status: s} })
}

func TestOverallStatus(t *testing.T) {
	cases := []struct {
		name string
		in   []Status
		want Status
	}{
		{"none", nil, StatusUnknown},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"unknown component", []Status{StatusHealthy, StatusUnknown}, StatusUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager("test", time.Second, nil)
			for i, s := range tc.in {
				m.Register(static(string(rune('a'+i)), s))
			}
			assert.Equal(t, tc.want, m.CheckAll(context.Background()).Status)
		})
	}
}

func TestCheckTimeout(t *testing.T) {
	m := NewManager("test", 20*time.Millisecond, nil)
	m.Register(NewCheckFunc("slow", func(ctx context.Context) ComponentHealth {
		<-ctx.Done()
		return ComponentHealth{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	}))
	h := m.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), h.Components["slow"].Error)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	res := Redis(pingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	res = Redis(pingFunc(func(context.Context) error { return errors.New("refused") })).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "refused", res.Error)
}

func TestConfiguredChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, Configured("model", true, "model API key").Check(context.Background()).Status)
	res := Configured("places", false, "Google Maps API key").Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "Google Maps API key not configured", res.Message)
}

func TestHandlers(t *testing.T) {
	m := NewManager("1.2.3", time.Second, nil)
	m.Register(static("database", StatusHealthy))
	m.Register(static("places", StatusDegraded))
	r := mux.NewRouter()
	m.Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var h SystemHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Len(t, h.Components, 2)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)

	m.Register(static("database", StatusUnhealthy))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}
