package analyzer

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"review-insights/internal/constants"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/metrics"
)

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty for api.openai.com
	Timeout time.Duration
}

// OpenAIModel calls the chat completions API with a strict JSON schema
// response format.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.ModelRequestTimeoutDefault
	}
	oc.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: headerCapture{base: http.DefaultTransport},
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

func (m *OpenAIModel) Name() string { return "openai:" + m.model }

func (m *OpenAIModel) Complete(ctx context.Context, req Request) (*Response, error) {
	const op = "openai.chat_completion"
	sink := &headerSink{}
	ctx = context.WithValue(ctx, headerSinkKey{}, sink)

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		// a literal 0 is dropped by omitempty and the API would default to 1
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   req.MaxOutputTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   SchemaName,
				Schema: BatchSchema(),
				Strict: true,
			},
		},
	})
	header, status := sink.get()
	metrics.ObserveUpstream("openai", op, status, time.Since(start))
	if err != nil {
		return nil, openAIError(op, err, header)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errs.NewUpstream(op, "openai", "response without content", status, false, nil)
	}
	return &Response{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Hints:            ParseRateHints(header),
	}, nil
}

func openAIError(op string, err error, header http.Header) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var u *errs.UpstreamError
	switch {
	case errors.As(err, &apiErr):
		u = &errs.UpstreamError{Op: op, System: "openai", Msg: apiErr.Message, StatusCode: apiErr.HTTPStatusCode,
			Retryable: transientStatus(apiErr.HTTPStatusCode), Err: err}
	case errors.As(err, &reqErr):
		u = &errs.UpstreamError{Op: op, System: "openai", Msg: "request failed", StatusCode: reqErr.HTTPStatusCode,
			Retryable: transientStatus(reqErr.HTTPStatusCode), Err: err}
	case errors.Is(err, context.Canceled):
		return err
	default:
		// transport failures and timeouts
		u = &errs.UpstreamError{Op: op, System: "openai", Msg: "transport error", Retryable: true, Err: err}
	}
	u.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	return u
}

// The client library does not expose response headers on errors, so the
// transport copies them into a sink carried by the request context.
type headerSinkKey struct{}

type headerSink struct {
	mu     sync.Mutex
	header http.Header
	status int
}

func (s *headerSink) set(h http.Header, status int) {
	s.mu.Lock()
	s.header, s.status = h, status
	s.mu.Unlock()
}

func (s *headerSink) get() (http.Header, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return http.Header{}, s.status
	}
	return s.header, s.status
}

type headerCapture struct {
	base http.RoundTripper
}

func (t headerCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if sink, ok := req.Context().Value(headerSinkKey{}).(*headerSink); ok {
			sink.set(resp.Header.Clone(), resp.StatusCode)
		}
	}
	return resp, err
}
