package analyzer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRateHints(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-remaining-requests", "1")
	h.Set("x-ratelimit-remaining-tokens", "900")
	h.Set("x-ratelimit-reset-requests", "1.5s")
	h.Set("x-ratelimit-reset-tokens", "6ms")

	got := ParseRateHints(h)
	assert.Equal(t, RateHints{RemainingRequests: 1, RemainingTokens: 900, ResetRequests: 1500 * time.Millisecond, ResetTokens: 6 * time.Millisecond}, got)
	assert.Equal(t, NoHints, ParseRateHints(http.Header{}))
}

func TestParseReset(t *testing.T) {
	assert.Equal(t, 6*time.Minute, parseReset("6m0s"))
	assert.Equal(t, 2*time.Second, parseReset("2"))
	assert.Equal(t, 250*time.Millisecond, parseReset("0.25"))
	assert.Zero(t, parseReset("soon"))
	assert.Zero(t, parseReset(""))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
}

func TestHintDelay(t *testing.T) {
	p := NewPacer(4000, 1600000, 500*time.Millisecond)

	assert.Zero(t, p.HintDelay(NoHints))
	assert.Zero(t, p.HintDelay(RateHints{RemainingRequests: 100, RemainingTokens: 50000}))
	// reset shorter than base waits base
	assert.Equal(t, 500*time.Millisecond, p.HintDelay(RateHints{RemainingRequests: 1, RemainingTokens: -1, ResetRequests: 10 * time.Millisecond}))
	assert.Equal(t, 2*time.Second, p.HintDelay(RateHints{RemainingRequests: -1, RemainingTokens: 1000, ResetTokens: 2 * time.Second}))
	assert.Equal(t, 2500*time.Millisecond, p.HintDelay(RateHints{RemainingRequests: 0, RemainingTokens: 10, ResetTokens: 2 * time.Second}))
}

func TestEstimateTokens(t *testing.T) {
	// ceil((1000+799+1200)/4) = 750
	assert.Equal(t, 750+4096, EstimateTokens(1000, 799, 4096))
	assert.Equal(t, 300, EstimateTokens(0, 0, 0))
}

func TestPacerWaitHonorsContext(t *testing.T) {
	p := NewPacer(1, 0, 0)
	assert.NoError(t, p.Wait(context.Background(), 100))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// the single request of this minute is spent
	assert.Error(t, p.Wait(ctx, 100))
}

func TestPacerUpdate(t *testing.T) {
	p := NewPacer(60, 6000, time.Second)
	p.Update(0, 0, 2*time.Second)
	for i := 0; i < 50; i++ {
		assert.NoError(t, p.Wait(context.Background(), 1_000_000))
	}
	assert.Equal(t, 2*time.Second, p.HintDelay(RateHints{RemainingRequests: 0, RemainingTokens: -1}))
}
