package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// Environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Google Places
	PlacesOperationTimeout  = 10 * time.Second
	PlacesOpenFor           = 30 * time.Second
	PlacesRequestTimeout    = 12 * time.Second
	PlacesSlowCallThreshold = 1500 * time.Millisecond

	// Model calls
	ModelRequestTimeoutDefault = 120 * time.Second

	// Identity lookups against the auth API
	AuthLookupTimeout = 5 * time.Second

	// Health
	HealthTimeoutDefault = 5 * time.Second

	// Background analysis started by campaign feedback
	BackgroundAnalysisTimeout = 3 * time.Minute
	PlaceLockTTL              = 5 * time.Minute

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second

	// Events store SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second
)
