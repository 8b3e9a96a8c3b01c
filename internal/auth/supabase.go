package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"review-insights/internal/constants"
	"review-insights/pkg/cache"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
)

// SupabaseResolver validates access tokens against GoTrue's /auth/v1/user.
// Accepted identities are cached by token hash; concurrent lookups of the
// same token share one upstream call.
type SupabaseResolver struct {
	baseURL string
	anonKey string
	client  *http.Client
	cache   *cache.Cache
	ttl     time.Duration
	group   singleflight.Group
	log     *logging.ComponentLogger
}

type SupabaseOption func(*SupabaseResolver)

func WithHTTPClient(c *http.Client) SupabaseOption {
	return func(s *SupabaseResolver) { s.client = c }
}

// WithCache enables the identity cache. A nil cache disables it.
func WithCache(c *cache.Cache, ttl time.Duration) SupabaseOption {
	return func(s *SupabaseResolver) { s.cache, s.ttl = c, ttl }
}

func WithResolverLogger(l *logging.Logger) SupabaseOption {
	return func(s *SupabaseResolver) { s.log = l.WithComponent("auth") }
}

func NewSupabaseResolver(baseURL, anonKey string, opts ...SupabaseOption) *SupabaseResolver {
	s := &SupabaseResolver{
		baseURL: baseURL,
		anonKey: anonKey,
		client:  &http.Client{Timeout: constants.AuthLookupTimeout},
		ttl:     5 * time.Minute,
		log:     logging.NewNop().WithComponent("auth"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:user:" + hex.EncodeToString(sum[:])
}

func (s *SupabaseResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	key := cacheKey(token)

	var cached Identity
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.log.Warn("identity cache read failed", logging.Error(err))
	} else if ok {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		id, err := s.fetch(context.WithoutCancel(ctx), token)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, id, s.ttl); err != nil {
			s.log.Warn("identity cache write failed", logging.Error(err))
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	id := *v.(*Identity)
	return &id, nil
}

func (s *SupabaseResolver) fetch(ctx context.Context, token string) (*Identity, error) {
	const op = "supabase.get_user"
	if s.baseURL == "" {
		return nil, errs.NewConfiguration(op, "SUPABASE_URL", "auth backend not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, constants.AuthLookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", s.anonKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ObserveUpstream("supabase", op, 0, time.Since(start))
		return nil, errs.NewUpstream(op, "supabase", "auth request failed", 0, true, err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream("supabase", op, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.NewUnauthorized(op, "invalid or expired token")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.NewUpstream(op, "supabase", fmt.Sprintf("unexpected status: %s", body), resp.StatusCode, resp.StatusCode >= 500, nil)
	}

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, errs.NewUpstream(op, "supabase", "invalid user payload", resp.StatusCode, false, err)
	}
	if user.ID == "" {
		return nil, errs.NewUnauthorized(op, "token has no user")
	}
	return &Identity{UserID: user.ID, Email: user.Email}, nil
}
