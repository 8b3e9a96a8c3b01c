package analyzer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeProvider(t *testing.T) {
	tests := map[string]string{
		"":                "unknown",
		"Google Maps":     "google",
		"google":          "google",
		"TripAdvisor":     "tripadvisor",
		"tripadvisor.com": "tripadvisor",
		"Campaign":        "campaign",
		"  Yelp ":         "yelp",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeProvider(in), "input %q", in)
	}
}

func items(provider string, n int) []item {
	out := make([]item, n)
	for i := range out {
		out[i] = item{ID: fmt.Sprintf("%s-%d", provider, i), Provider: provider, Text: "x"}
	}
	return out
}

func providers(batch []item) map[string]int {
	m := map[string]int{}
	for _, it := range batch {
		m[it.Provider]++
	}
	return m
}

func TestTakeRespectsRatioAndSize(t *testing.T) {
	all := append(items("google", 10), items("tripadvisor", 10)...)
	b := newBuckets(all)

	batch := b.take(5, 0.5)
	assert.Len(t, batch, 5)
	got := providers(batch)
	assert.Equal(t, 3, got["google"])
	assert.Equal(t, 2, got["tripadvisor"])
}

func TestTakeFillsFromOtherProviders(t *testing.T) {
	all := append(items("google", 1), items("campaign", 2)...)
	all = append(all, items("yelp", 4)...)
	b := newBuckets(all)

	batch := b.take(5, 0.5)
	assert.Len(t, batch, 5)
	assert.Equal(t, "google-0", batch[0].ID)
	// the larger queue is drained first
	assert.Equal(t, "yelp", batch[1].Provider)
	assert.Equal(t, map[string]int{"google": 1, "yelp": 4}, providers(batch))
	assert.Equal(t, 2, b.len())
}

func TestTakeClampsRatio(t *testing.T) {
	all := append(items("google", 10), items("tripadvisor", 10)...)
	b := newBuckets(all)
	got := providers(b.take(10, 1.0))
	assert.Equal(t, 9, got["google"])
	assert.Equal(t, 1, got["tripadvisor"])
}

func TestTwentyReviewsMakeFourBatches(t *testing.T) {
	all := append(items("google", 12), items("tripadvisor", 5)...)
	all = append(all, items("unknown", 3)...)
	b := newBuckets(all)

	seen := map[string]bool{}
	batches := 0
	for b.len() > 0 {
		batch := b.take(5, 0.5)
		assert.LessOrEqual(t, len(batch), 5)
		for _, it := range batch {
			assert.False(t, seen[it.ID], "review %s taken twice", it.ID)
			seen[it.ID] = true
		}
		batches++
	}
	assert.Equal(t, 4, batches)
	assert.Len(t, seen, 20)
}

func TestRemainingDrainsQueues(t *testing.T) {
	b := newBuckets(append(items("google", 2), items("yelp", 1)...))
	rest := b.remaining()
	assert.Len(t, rest, 3)
	assert.Equal(t, 0, b.len())
	assert.Nil(t, b.take(5, 0.5))
}

func TestBucketsKeep(t *testing.T) {
	b := newBuckets(append(items("google", 3), items("tripadvisor", 2)...))
	dropped := b.keep(map[string]bool{"google-0": true, "google-2": true, "tripadvisor-1": true})
	assert.Equal(t, []string{"google-1", "tripadvisor-0"}, dropped)
	assert.Equal(t, []string{"google-0", "google-2", "tripadvisor-1"}, b.ids())
	assert.Equal(t, 3, b.len())
}
