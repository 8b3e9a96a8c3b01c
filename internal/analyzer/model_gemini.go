package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	errs "review-insights/pkg/errors"
	"review-insights/pkg/metrics"
)

// GeminiModel calls generateContent with a JSON response schema.
type GeminiModel struct {
	client *genai.Client
	model  string
	schema *genai.Schema
}

func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	schema, err := GeminiSchema()
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.NewConfiguration("analyzer.NewGeminiModel", "GEMINI_API_KEY", "failed to create GenAI client: "+err.Error())
	}
	return &GeminiModel{client: client, model: model, schema: schema}, nil
}

func (m *GeminiModel) Name() string { return "gemini:" + m.model }

func (m *GeminiModel) Complete(ctx context.Context, req Request) (*Response, error) {
	const op = "gemini.generate_content"
	start := time.Now()
	resp, err := m.client.Models.GenerateContent(ctx, m.model,
		[]*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			MaxOutputTokens:   int32(req.MaxOutputTokens),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    m.schema,
		})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			metrics.ObserveUpstream("gemini", op, apiErr.Code, time.Since(start))
			return nil, errs.NewUpstream(op, "gemini", apiErr.Message, apiErr.Code, transientStatus(apiErr.Code), err)
		}
		metrics.ObserveUpstream("gemini", op, 0, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.NewUpstream(op, "gemini", "transport error", 0, true, err)
	}
	metrics.ObserveUpstream("gemini", op, 200, time.Since(start))

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, errs.NewUpstream(op, "gemini", "response without content", 200, false, nil)
	}
	out := &Response{Content: text, Hints: NoHints}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}

// GeminiSchema converts the embedded JSON schema into the genai schema type.
// The Gemini dialect has no additionalProperties and spells types in upper
// case.
func GeminiSchema() (*genai.Schema, error) {
	var node map[string]any
	if err := json.Unmarshal(batchSchema, &node); err != nil {
		return nil, errs.NewConfiguration("analyzer.GeminiSchema", "", "invalid embedded schema: "+err.Error())
	}
	return toGenaiSchema(node)
}

func toGenaiSchema(node map[string]any) (*genai.Schema, error) {
	s := &genai.Schema{}
	typ, _ := node["type"].(string)
	switch typ {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		return nil, fmt.Errorf("unsupported schema type %q", typ)
	}
	if d, ok := node["description"].(string); ok {
		s.Description = d
	}
	if v, ok := node["minimum"].(float64); ok {
		s.Minimum = genai.Ptr(v)
	}
	if v, ok := node["maximum"].(float64); ok {
		s.Maximum = genai.Ptr(v)
	}
	for _, e := range asSlice(node["enum"]) {
		if str, ok := e.(string); ok {
			s.Enum = append(s.Enum, str)
		}
	}
	for _, r := range asSlice(node["required"]) {
		if str, ok := r.(string); ok {
			s.Required = append(s.Required, str)
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			child, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %s is not an object", name)
			}
			cs, err := toGenaiSchema(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			s.Properties[name] = cs
		}
		// keep the model's output order stable and aligned with required
		s.PropertyOrdering = append([]string(nil), s.Required...)
	}
	if items, ok := node["items"].(map[string]any); ok {
		is, err := toGenaiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = is
	}
	return s, nil
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
