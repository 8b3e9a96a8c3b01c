package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "review-insights/pkg/errors"
)

type staticResolver map[string]string

func (s staticResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if u, ok := s[token]; ok {
		return &Identity{UserID: u}, nil
	}
	return nil, errs.NewUnauthorized("test", "unknown token")
}

func TestMiddleware(t *testing.T) {
	var gotErr error
	mw := NewMiddleware(staticResolver{"good": "user-1"}, func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(errs.HTTPStatus(err))
	}, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		ip, _ := ClientIPFrom(r.Context())
		w.Header().Set("X-User", id.UserID)
		w.Header().Set("X-IP", ip)
	})
	h := mw.Handler(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid token", "Bearer good", http.StatusOK, "user-1"},
		{"lowercase scheme", "bearer good", http.StatusOK, "user-1"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic Z29vZA==", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr = nil
			req := httptest.NewRequest(http.MethodPost, "/functions/v1/list-competitors", nil)
			req.RemoteAddr = "10.0.1.5:4242"
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, rec.Header().Get("X-User"))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "10.0.1.5", rec.Header().Get("X-IP"))
				assert.NoError(t, gotErr)
			} else {
				assert.True(t, errs.Is(gotErr, errs.ErrAuth))
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		want          string
	}{
		{name: "RemoteAddr", remoteAddr: "10.0.1.5:12345", want: "10.0.1.5"},
		{name: "X-Forwarded-For", remoteAddr: "192.168.1.1:12345", xForwardedFor: "10.0.1.8", want: "10.0.1.8"},
		{name: "X-Forwarded-For list", remoteAddr: "192.168.1.1:12345", xForwardedFor: "10.0.1.8, 172.16.0.1", want: "10.0.1.8"},
		{name: "X-Real-IP", remoteAddr: "192.168.1.1:12345", xRealIP: "10.0.1.5", want: "10.0.1.5"},
		{name: "no port", remoteAddr: "10.9.9.9", want: "10.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, string) (*Identity, error) { return nil, f.err }

func TestChain(t *testing.T) {
	ctx := context.Background()
	c := Chain{nil, staticResolver{"ops": "svc-user"}, staticResolver{"jwt": "user-2"}}

	id, err := c.Resolve(ctx, "jwt")
	require.NoError(t, err)
	assert.Equal(t, "user-2", id.UserID)

	id, err = c.Resolve(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, "svc-user", id.UserID)

	_, err = c.Resolve(ctx, "nope")
	assert.True(t, errs.Is(err, errs.ErrAuth))

	// an outage is not an auth failure and stops the chain
	outage := errs.NewUpstream("test", "supabase", "down", 503, true, nil)
	_, err = Chain{failingResolver{outage}, staticResolver{"jwt": "u"}}.Resolve(ctx, "jwt")
	assert.True(t, errs.Is(err, errs.ErrUpstream))
}
