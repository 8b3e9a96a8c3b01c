package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostTracker(t *testing.T) {
	tracker := NewCostTracker(PricingFor("gpt-4o-mini-2024-07-18"))

	u := tracker.Usage()
	assert.Zero(t, u.PromptTokens)
	assert.Zero(t, u.CostUSD)

	tracker.AddUsage(1000, 500)
	tracker.AddUsage(2000, 100)
	u = tracker.Usage()
	assert.Equal(t, 3000, u.PromptTokens)
	assert.Equal(t, 600, u.CompletionTokens)
	assert.Equal(t, 2, u.Requests)
	assert.InDelta(t, 3000*0.15/1e6+600*0.60/1e6, u.CostUSD, 1e-12)
}

func TestPricingFor(t *testing.T) {
	assert.Equal(t, prices["gpt-4o-mini"], PricingFor("gpt-4o-mini-2024-07-18"))
	assert.Equal(t, prices["gpt-4o"], PricingFor("gpt-4o-2024-08-06"))
	assert.Equal(t, prices["gemini-2.0-flash"], PricingFor("gemini-2.0-flash-001"))
	assert.Equal(t, Pricing{}, PricingFor("local-llama"))
}
