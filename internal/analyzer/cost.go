package analyzer

import (
	"strings"
	"sync"
	"time"

	"review-insights/pkg/metrics"
)

// Pricing is USD per million tokens.
type Pricing struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

// Published list prices for the models the service is configured with.
// Unknown models are tracked with zero cost.
var prices = map[string]Pricing{
	"gpt-4o-mini":      {PromptPerMillion: 0.15, CompletionPerMillion: 0.60},
	"gpt-4o":           {PromptPerMillion: 2.50, CompletionPerMillion: 10.00},
	"gpt-4.1-mini":     {PromptPerMillion: 0.40, CompletionPerMillion: 1.60},
	"gemini-2.0-flash": {PromptPerMillion: 0.10, CompletionPerMillion: 0.40},
	"gemini-2.5-flash": {PromptPerMillion: 0.30, CompletionPerMillion: 2.50},
}

// PricingFor matches a model name by its longest known prefix, so dated
// snapshots like gpt-4o-mini-2024-07-18 resolve to their family.
func PricingFor(model string) Pricing {
	var best string
	for name := range prices {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	return prices[best]
}

// CostTracker tracks model usage and estimated cost for one run.
type CostTracker struct {
	mu               sync.RWMutex
	pricing          Pricing
	promptTokens     int
	completionTokens int
	totalRequests    int
	estimatedCostUSD float64
	startTime        time.Time
}

func NewCostTracker(p Pricing) *CostTracker {
	return &CostTracker{pricing: p, startTime: time.Now()}
}

func (c *CostTracker) AddUsage(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.promptTokens += promptTokens
	c.completionTokens += completionTokens
	c.totalRequests++
	c.estimatedCostUSD += float64(promptTokens)*c.pricing.PromptPerMillion/1e6 +
		float64(completionTokens)*c.pricing.CompletionPerMillion/1e6

	metrics.Tokens.WithLabelValues("prompt").Add(float64(promptTokens))
	metrics.Tokens.WithLabelValues("completion").Add(float64(completionTokens))
}

// Usage is the usage block of a run summary.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Requests         int     `json:"requests"`
	CostUSD          float64 `json:"cost_usd"`
}

func (c *CostTracker) Usage() Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Usage{
		PromptTokens:     c.promptTokens,
		CompletionTokens: c.completionTokens,
		Requests:         c.totalRequests,
		CostUSD:          c.estimatedCostUSD,
	}
}

func (c *CostTracker) Duration() time.Duration { return time.Since(c.startTime) }
