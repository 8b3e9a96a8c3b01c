package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	errs "review-insights/pkg/errors"
)

// FieldError is one failed check against an environment key.
type FieldError struct {
	Field   string
	Value   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// ConfigValidator collects field errors so they can be reported together.
type ConfigValidator struct {
	errors []FieldError
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{errors: make([]FieldError, 0)}
}

func (cv *ConfigValidator) AddError(field, value, message string) {
	cv.errors = append(cv.errors, FieldError{Field: field, Value: value, Message: message})
}

func (cv *ConfigValidator) HasErrors() bool { return len(cv.errors) > 0 }

func (cv *ConfigValidator) GetErrorsAsString() string {
	var out []string
	for _, err := range cv.errors {
		out = append(out, err.Error())
	}
	return strings.Join(out, "\n")
}

// Validate checks the whole configuration. Model API keys are deliberately not
// required here: the analyzer reports a ConfigurationError when it is invoked
// without one, so CRUD endpoints keep working.
func (c *Config) Validate() error {
	v := NewConfigValidator()

	c.validateRequired(v)
	c.validateFormats(v)
	c.validateRanges(v)
	c.validatePorts(v)

	if v.HasErrors() {
		return errs.NewValidation("config.Validate", fmt.Sprintf("configuration validation failed:\n%s", v.GetErrorsAsString()), nil)
	}
	return nil
}

func (c *Config) validateRequired(v *ConfigValidator) {
	if c.DatabaseURL == "" {
		v.AddError("DATABASE_URL", c.DatabaseURL, "database URL is required")
	}
	if c.Port == "" {
		v.AddError("PORT", c.Port, "port is required")
	}
}

func (c *Config) validateFormats(v *ConfigValidator) {
	switch c.DBDriver {
	case "postgres", "mysql":
	default:
		v.AddError("DB_DRIVER", c.DBDriver, "must be 'postgres' or 'mysql'")
	}

	switch c.ModelProvider {
	case "openai", "gemini":
	default:
		v.AddError("ANALYZE_MODEL_PROVIDER", c.ModelProvider, "must be 'openai' or 'gemini'")
	}

	if c.SupabaseURL != "" {
		if u, err := url.Parse(c.SupabaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			v.AddError("SUPABASE_URL", c.SupabaseURL, "invalid URL")
		}
	}

	validLogLevels := []string{"trace", "debug", "info", "warn", "error", "fatal"}
	if c.LogLevel != "" && !contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		v.AddError("LOG_LEVEL", c.LogLevel, "invalid log level (must be one of: trace, debug, info, warn, error, fatal)")
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		v.AddError("LOG_FORMAT", c.LogFormat, "invalid log format (must be 'json' or 'text')")
	}
}

func (c *Config) validateRanges(v *ConfigValidator) {
	if c.DBMaxOpenConns < 1 || c.DBMaxOpenConns > 1000 {
		v.AddError("DB_MAX_OPEN_CONNS", strconv.Itoa(c.DBMaxOpenConns), "max open connections must be between 1 and 1000")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		v.AddError("DB_MAX_IDLE_CONNS", strconv.Itoa(c.DBMaxIdleConns), "max idle connections must be between 0 and max open connections")
	}

	if c.MaxRetries < 1 || c.MaxRetries > 20 {
		v.AddError("OPENAI_MAX_RETRIES", strconv.Itoa(c.MaxRetries), "must be between 1 and 20")
	}
	if c.BackoffBase <= 0 {
		v.AddError("OPENAI_BACKOFF_BASE_MS", c.BackoffBase.String(), "must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		v.AddError("OPENAI_BACKOFF_MAX_MS", c.BackoffMax.String(), "must be >= OPENAI_BACKOFF_BASE_MS")
	}
	if c.TargetRPM < 1 {
		v.AddError("OPENAI_TARGET_RPM", strconv.Itoa(c.TargetRPM), "must be positive")
	}
	if c.TargetTPM < 1 {
		v.AddError("OPENAI_TARGET_TPM", strconv.Itoa(c.TargetTPM), "must be positive")
	}

	if c.AnalyzeMaxLimit < 1 {
		v.AddError("ANALYZE_MAX_LIMIT", strconv.Itoa(c.AnalyzeMaxLimit), "must be positive")
	}
	if c.AnalyzeDefaultLimit < 1 || c.AnalyzeDefaultLimit > c.AnalyzeMaxLimit {
		v.AddError("ANALYZE_DEFAULT_LIMIT", strconv.Itoa(c.AnalyzeDefaultLimit), "must be between 1 and ANALYZE_MAX_LIMIT")
	}
	if c.AnalyzeBatchSize < 1 || c.AnalyzeBatchSize > 50 {
		v.AddError("ANALYZE_BATCH_SIZE", strconv.Itoa(c.AnalyzeBatchSize), "must be between 1 and 50")
	}
	if c.AnalyzeMaxBatches < 0 {
		v.AddError("ANALYZE_MAX_BATCHES", strconv.Itoa(c.AnalyzeMaxBatches), "must not be negative")
	}
	if c.AnalyzeMaxReviewLength < 50 {
		v.AddError("ANALYZE_MAX_REVIEW_LENGTH", strconv.Itoa(c.AnalyzeMaxReviewLength), "must be at least 50")
	}
	if c.AnalyzeMaxOutputTokens < 256 {
		v.AddError("ANALYZE_MAX_OUTPUT_TOKENS", strconv.Itoa(c.AnalyzeMaxOutputTokens), "must be at least 256")
	}
	if c.AnalyzeClaimTTL < 0 {
		v.AddError("ANALYZE_CLAIM_TTL", c.AnalyzeClaimTTL.String(), "must not be negative")
	}
}

func (c *Config) validatePorts(v *ConfigValidator) {
	ports := map[string]string{
		"PORT":       c.Port,
		"ADMIN_PORT": c.AdminPort,
	}
	used := make(map[string]string)
	for name, port := range ports {
		if port == "" || port == "0" {
			continue
		}
		if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
			v.AddError(name, port, "invalid port number (must be 1-65535)")
			continue
		}
		if existing, exists := used[port]; exists {
			v.AddError(name, port, fmt.Sprintf("port conflict with %s", existing))
		} else {
			used[port] = name
		}
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// GetConfigSummary returns a summary of the configuration with secrets masked.
func (c *Config) GetConfigSummary() map[string]interface{} {
	return map[string]interface{}{
		"env":                    c.Env,
		"db_driver":              c.DBDriver,
		"database_url":           maskString(c.DatabaseURL, 12),
		"model_provider":         c.ModelProvider,
		"openai_model":           c.OpenAIModel,
		"openai_api_key":         maskString(c.OpenAIAPIKey, 6),
		"gemini_api_key":         maskString(c.GeminiAPIKey, 6),
		"google_maps_api_key":    maskString(c.GoogleMapsAPIKey, 6),
		"supabase_url":           c.SupabaseURL,
		"max_retries":            c.MaxRetries,
		"target_rpm":             c.TargetRPM,
		"target_tpm":             c.TargetTPM,
		"analyze_batch_size":     c.AnalyzeBatchSize,
		"analyze_max_limit":      c.AnalyzeMaxLimit,
		"analyze_provider_ratio": c.AnalyzeProviderRatio,
		"redis_enabled":          c.RedisURL != "",
		"amqp_enabled":           c.AMQPURL != "",
		"port":                   c.Port,
		"admin_port":             c.AdminPort,
		"log_level":              c.LogLevel,
		"log_format":             c.LogFormat,
	}
}

// maskString masks sensitive strings for logging/display.
func maskString(s string, keepFirst int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepFirst {
		return strings.Repeat("*", len(s))
	}
	return s[:keepFirst] + strings.Repeat("*", len(s)-keepFirst)
}
