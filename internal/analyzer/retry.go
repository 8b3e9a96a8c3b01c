package analyzer

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"review-insights/internal/constants"
	errs "review-insights/pkg/errors"
)

// Backoff computes retry delays: min(base*2^n + jitter, max). A server
// supplied Retry-After replaces the computed value but is still capped, and a
// delay never drops below the previous one for the same batch.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter func() time.Duration
}

func defaultJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(constants.RetryJitterMaxMs) * int64(time.Millisecond)))
}

func (b Backoff) Delay(attempt int, retryAfter, prev time.Duration) time.Duration {
	var d time.Duration
	if retryAfter > 0 {
		d = retryAfter
	} else {
		d = b.Base << min(attempt, 30)
		if b.Jitter != nil {
			d += b.Jitter()
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if d < prev {
		d = prev
	}
	return d
}

// retryAfterOf extracts the server hint carried by an UpstreamError.
func retryAfterOf(err error) time.Duration {
	var u *errs.UpstreamError
	if errors.As(err, &u) {
		return u.RetryAfter
	}
	return 0
}

// retryReason labels the retries metric.
func retryReason(err error) string {
	var u *errs.UpstreamError
	if !errors.As(err, &u) || u.StatusCode == 0 {
		return "network"
	}
	if u.StatusCode >= 500 {
		return "5xx"
	}
	return strconv.Itoa(u.StatusCode)
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == 429 || code == 408 || code >= 500
}
