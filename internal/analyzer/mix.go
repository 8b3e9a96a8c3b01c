package analyzer

import (
	"math"
	"sort"
	"strings"

	"review-insights/internal/constants"
	"review-insights/internal/domain"
)

// item is a review prepared for the model.
type item struct {
	ID       string `json:"review_id"`
	Provider string `json:"provider"`
	Text     string `json:"text"`
}

// normalizeProvider folds the free-form provider column into the buckets the
// mixer knows about.
func normalizeProvider(p string) string {
	lower := strings.ToLower(strings.TrimSpace(p))
	switch {
	case lower == "":
		return domain.ProviderUnknown
	case strings.Contains(lower, "google"):
		return domain.ProviderGoogle
	case strings.Contains(lower, "trip"):
		return domain.ProviderTripadvisor
	default:
		return lower
	}
}

func clampRatio(r float64) float64 {
	if math.IsNaN(r) {
		return 0.5
	}
	return math.Max(constants.ProviderRatioMin, math.Min(constants.ProviderRatioMax, r))
}

// buckets queues pending reviews per provider, preserving selection order
// inside each queue.
type buckets struct {
	groups map[string][]item
}

func newBuckets(items []item) *buckets {
	b := &buckets{groups: make(map[string][]item)}
	for _, it := range items {
		b.groups[it.Provider] = append(b.groups[it.Provider], it)
	}
	return b
}

func (b *buckets) len() int {
	n := 0
	for _, q := range b.groups {
		n += len(q)
	}
	return n
}

// remaining drains every queue, used when a run stops early.
func (b *buckets) remaining() []item {
	var out []item
	for _, p := range b.fillOrder() {
		out = append(out, b.groups[p]...)
		b.groups[p] = nil
	}
	return out
}

func (b *buckets) ids() []string {
	var out []string
	for _, p := range b.fillOrder() {
		for _, it := range b.groups[p] {
			out = append(out, it.ID)
		}
	}
	return out
}

// keep drops queued reviews whose id is not in held and returns the dropped
// ids.
func (b *buckets) keep(held map[string]bool) []string {
	var dropped []string
	for p, q := range b.groups {
		kept := q[:0:0]
		for _, it := range q {
			if held[it.ID] {
				kept = append(kept, it)
			} else {
				dropped = append(dropped, it.ID)
			}
		}
		b.groups[p] = kept
	}
	sort.Strings(dropped)
	return dropped
}

func (b *buckets) pop(provider string, n int) []item {
	q := b.groups[provider]
	if n > len(q) {
		n = len(q)
	}
	if n <= 0 {
		return nil
	}
	out := q[:n:n]
	b.groups[provider] = q[n:]
	return out
}

// fillOrder is google, tripadvisor, then the other providers by queue size
// descending (name breaks ties so batches are deterministic).
func (b *buckets) fillOrder() []string {
	others := make([]string, 0, len(b.groups))
	for p := range b.groups {
		if p != domain.ProviderGoogle && p != domain.ProviderTripadvisor {
			others = append(others, p)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		li, lj := len(b.groups[others[i]]), len(b.groups[others[j]])
		if li != lj {
			return li > lj
		}
		return others[i] < others[j]
	})
	return append([]string{domain.ProviderGoogle, domain.ProviderTripadvisor}, others...)
}

// take builds the next batch: round(size*ratio) google reviews and
// round(size*(1-ratio)) tripadvisor reviews, then fills free slots in
// fillOrder. The batch never exceeds size.
func (b *buckets) take(size int, ratio float64) []item {
	if size <= 0 || b.len() == 0 {
		return nil
	}
	ratio = clampRatio(ratio)
	gQuota := int(math.Round(float64(size) * ratio))
	tQuota := int(math.Round(float64(size) * (1 - ratio)))

	out := make([]item, 0, size)
	out = append(out, b.pop(domain.ProviderGoogle, gQuota)...)
	out = append(out, b.pop(domain.ProviderTripadvisor, min(tQuota, size-len(out)))...)
	for _, p := range b.fillOrder() {
		if len(out) >= size {
			break
		}
		out = append(out, b.pop(p, size-len(out))...)
	}
	return out
}
