package analyzer

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"review-insights/internal/constants"
	"review-insights/pkg/metrics"
)

// RateHints are the x-ratelimit-* response headers. Remaining values are -1
// when the header was absent or unparsable.
type RateHints struct {
	RemainingRequests int
	RemainingTokens   int
	ResetRequests     time.Duration
	ResetTokens       time.Duration
}

// NoHints is the zero-information value.
var NoHints = RateHints{RemainingRequests: -1, RemainingTokens: -1}

func ParseRateHints(h http.Header) RateHints {
	if h == nil {
		return NoHints
	}
	return RateHints{
		RemainingRequests: headerInt(h.Get("x-ratelimit-remaining-requests")),
		RemainingTokens:   headerInt(h.Get("x-ratelimit-remaining-tokens")),
		ResetRequests:     parseReset(h.Get("x-ratelimit-reset-requests")),
		ResetTokens:       parseReset(h.Get("x-ratelimit-reset-tokens")),
	}
}

func headerInt(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1
	}
	return n
}

// parseReset reads a reset value. OpenAI sends Go-style durations ("1s",
// "6m0s", "20ms"); plain numbers are taken as seconds.
func parseReset(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && !math.IsInf(f, 0) {
		return time.Duration(f * float64(time.Second))
	}
	return 0
}

// parseRetryAfter reads Retry-After as delay seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// Pacer keeps the analyzer under the target requests and tokens per minute
// with two token buckets.
type Pacer struct {
	mu   sync.RWMutex
	req  *rate.Limiter
	tok  *rate.Limiter
	base time.Duration
}

func NewPacer(rpm, tpm int, base time.Duration) *Pacer {
	p := &Pacer{}
	p.Update(rpm, tpm, base)
	return p
}

// Update retunes the limiters, used when the config watcher publishes a new
// snapshot. Burst is one second worth of budget.
func (p *Pacer) Update(rpm, tpm int, base time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reqLimit, reqBurst := perMinute(rpm)
	tokLimit, tokBurst := perMinute(tpm)
	if p.req == nil {
		p.req = rate.NewLimiter(reqLimit, reqBurst)
		p.tok = rate.NewLimiter(tokLimit, tokBurst)
	} else {
		p.req.SetLimit(reqLimit)
		p.req.SetBurst(reqBurst)
		p.tok.SetLimit(tokLimit)
		p.tok.SetBurst(tokBurst)
	}
	p.base = base
}

func perMinute(n int) (rate.Limit, int) {
	if n <= 0 {
		return rate.Inf, 1
	}
	return rate.Limit(float64(n) / 60), max(1, n/60)
}

// Wait blocks until one request carrying about tokens tokens may be sent.
// Estimates larger than the burst are clamped so a single large batch still
// goes out.
func (p *Pacer) Wait(ctx context.Context, tokens int) error {
	p.mu.RLock()
	req, tok := p.req, p.tok
	p.mu.RUnlock()

	start := time.Now()
	if err := req.Wait(ctx); err != nil {
		return err
	}
	if tokens > 0 && tok.Limit() != rate.Inf {
		if err := tok.WaitN(ctx, min(tokens, tok.Burst())); err != nil {
			return err
		}
	}
	metrics.PacingWait.Observe(time.Since(start).Seconds())
	return nil
}

// HintDelay is the extra wait the response headers ask for: when requests or
// tokens are nearly exhausted, wait max(reset, base) for each.
func (p *Pacer) HintDelay(h RateHints) time.Duration {
	p.mu.RLock()
	base := p.base
	p.mu.RUnlock()

	var d time.Duration
	if h.RemainingRequests >= 0 && h.RemainingRequests <= constants.RemainingRequestsFloor {
		d += max(h.ResetRequests, base)
	}
	if h.RemainingTokens >= 0 && h.RemainingTokens <= constants.RemainingTokensFloor {
		d += max(h.ResetTokens, base)
	}
	return d
}

// EstimateTokens approximates a request's token cost from its prompt sizes:
// ceil((system+user+slack)/4) plus the output budget.
func EstimateTokens(systemLen, userLen, maxOutput int) int {
	chars := systemLen + userLen + constants.TokenEstimateSlackChars
	return (chars+constants.CharsPerToken-1)/constants.CharsPerToken + maxOutput
}
