package constants

// Centralized threshold values used across the application.
// These are not configuration knobs; use pkg/config for env-driven settings.

const (
	// Analysis output bounds
	ExecutiveSummaryMaxChars = 260
	AspectSeverityMin        = 1
	AspectSeverityMax        = 3

	// Provider mix ratio bounds
	ProviderRatioMin = 0.1
	ProviderRatioMax = 0.9

	// Rate limit header thresholds that trigger an extra pause
	RemainingRequestsFloor = 1
	RemainingTokensFloor   = 1000

	// Retry jitter upper bound, milliseconds
	RetryJitterMaxMs = 250

	// Slack added to prompt length when estimating tokens
	TokenEstimateSlackChars = 1200
	CharsPerToken           = 4

	// Campaign feedback shorter than this is not sent for analysis
	FeedbackAnalyzeMinChars = 10

	// Diagnostics sample size
	DiagnoseSampleSize = 5

	// Fraction of failed calls in the breaker window that opens it
	CircuitFailureRate = 0.6
)
