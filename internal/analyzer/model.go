package analyzer

import (
	"context"
	"strings"

	"review-insights/pkg/config"
	errs "review-insights/pkg/errors"
)

// Request is one batch prompt.
type Request struct {
	System          string
	User            string
	MaxOutputTokens int
}

// Response is the raw model output with its token usage and rate-limit
// hints from the response headers.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Hints            RateHints
}

// Model sends one structured-output request. Failures are UpstreamErrors
// with Retryable set for transient conditions (429, 5xx, transport).
type Model interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewModel builds the provider selected by ANALYZE_MODEL_PROVIDER. A missing
// API key is a ConfigurationError.
func NewModel(ctx context.Context, cfg *config.Config) (Model, error) {
	switch strings.ToLower(cfg.ModelProvider) {
	case "", "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errs.NewConfiguration("analyzer.NewModel", "OPENAI_API_KEY", "OpenAI API key not configured")
		}
		return NewOpenAIModel(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.OpenAIRequestTimeout,
		}), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, errs.NewConfiguration("analyzer.NewModel", "GEMINI_API_KEY", "Gemini API key not configured")
		}
		return NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, errs.NewConfiguration("analyzer.NewModel", "ANALYZE_MODEL_PROVIDER", "unknown model provider "+cfg.ModelProvider)
	}
}
