package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	identityKey contextKey = "identity"
	clientIPKey contextKey = "client_ip"
)

// Identity is the caller behind a bearer token.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// Service is set for static operator tokens.
	Service bool `json:"service,omitempty"`
}

// Resolver turns a bearer token into an identity. Implementations return an
// AuthError for tokens they reject.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// Middleware requires a valid bearer token and stores the identity in the
// request context. Rejections are handed to onError so the API layer keeps
// control of the response envelope.
type Middleware struct {
	resolver Resolver
	onError  func(w http.ResponseWriter, r *http.Request, err error)
	log      *logging.ComponentLogger
}

func NewMiddleware(resolver Resolver, onError func(w http.ResponseWriter, r *http.Request, err error), log *logging.Logger) *Middleware {
	if log == nil {
		log = logging.NewNop()
	}
	return &Middleware{resolver: resolver, onError: onError, log: log.WithComponent("auth")}
}

// Handler wraps an HTTP handler with token authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)
		token := BearerToken(r)
		if token == "" {
			m.onError(w, r, errs.NewUnauthorized("auth.Middleware", "missing bearer token"))
			return
		}

		id, err := m.resolver.Resolve(r.Context(), token)
		if err != nil {
			m.log.Ctx(r.Context()).Warn("token rejected",
				logging.String("client_ip", clientIP),
				logging.Error(err))
			m.onError(w, r, err)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		ctx = context.WithValue(ctx, clientIPKey, clientIP)
		ctx = logging.WithUserID(ctx, id.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom retrieves the caller from the request context.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// ClientIPFrom retrieves the client IP stored by the middleware.
func ClientIPFrom(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey).(string)
	return ip, ok
}

// ClientIP extracts the real client IP from the request.
// Handles X-Forwarded-For and X-Real-IP headers for reverse proxy scenarios
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		if ip, _, _ := strings.Cut(xff, ","); strings.TrimSpace(ip) != "" {
			return strings.TrimSpace(ip)
		}
	}
	if xri := req.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return ip
}

// Chain tries resolvers in order. The first identity wins; when every
// resolver rejects the token the last error is returned.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, token string) (*Identity, error) {
	err := errs.NewUnauthorized("auth.Chain", "invalid token")
	for _, r := range c {
		if r == nil {
			continue
		}
		var id *Identity
		id, err = r.Resolve(ctx, token)
		if err == nil {
			return id, nil
		}
		if !errs.Is(err, errs.ErrAuth) {
			return nil, err
		}
	}
	return nil, err
}
