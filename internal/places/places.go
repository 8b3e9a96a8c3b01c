// Package places serves Google Places autocomplete for business onboarding.
package places

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"googlemaps.github.io/maps"

	"review-insights/internal/constants"
	"review-insights/pkg/circuit"
	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
)

type Client struct {
	client   *maps.Client
	breaker  *circuit.Breaker
	country  string
	language string
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL points the client at a different host, for tests.
func WithBaseURL(u string) Option { return func(o *options) { o.baseURL = u } }

func New(apiKey, country, language string, log *logging.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errs.NewConfiguration("places.New", "GOOGLE_MAPS_API_KEY", "Google Maps API key not configured")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	mopts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: constants.PlacesRequestTimeout}),
	}
	if o.baseURL != "" {
		mopts = append(mopts, maps.WithBaseURL(o.baseURL))
	}
	client, err := maps.NewClient(mopts...)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	if country == "" {
		country = "ar"
	}
	if language == "" {
		language = "es-AR"
	}
	return &Client{
		client: client,
		breaker: circuit.New(circuit.Config{
			Name:              "google_places",
			OperationTimeout:  constants.PlacesOperationTimeout,
			OpenFor:           constants.PlacesOpenFor,
			MaxConsecFailures: 5,
			FailureRate:       constants.CircuitFailureRate,
			SlowCallThreshold: constants.PlacesSlowCallThreshold,
		}, log),
		country:  strings.ToLower(country),
		language: language,
	}, nil
}

// Query is an autocomplete request.
type Query struct {
	Input        string  `json:"input"`
	SessionToken string  `json:"sessionToken,omitempty"`
	Vertical     string  `json:"vertical,omitempty"`
	Origin       *LatLng `json:"origin,omitempty"`
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type StructuredFormatting struct {
	MainText      string `json:"main_text"`
	SecondaryText string `json:"secondary_text"`
}

type Suggestion struct {
	PlaceID              string               `json:"placeId"`
	Description          string               `json:"description"`
	StructuredFormatting StructuredFormatting `json:"structured_formatting"`
	PrimaryType          *string              `json:"primaryType"`
	Types                []string             `json:"types"`
	TypeES               *string              `json:"type_es"`
	SessionToken         string               `json:"sessionToken"`
}

type Result struct {
	Suggestions  []Suggestion `json:"suggestions"`
	SessionToken string       `json:"sessionToken"`
	Query        string       `json:"query"`
	Count        int          `json:"count"`
	Message      string       `json:"message,omitempty"`
}

// MinInputLength is the shortest input sent upstream.
const MinInputLength = 2

// Autocomplete returns establishment suggestions restricted to the client's
// country. Inputs shorter than MinInputLength return an empty result without
// calling Google. A vertical narrows the suggestions to its place types.
func (c *Client) Autocomplete(ctx context.Context, q Query) (*Result, error) {
	const op = "places.Autocomplete"
	input := strings.TrimSpace(q.Input)
	if input == "" {
		return nil, errs.NewValidation(op, "input is required and must be a string", nil)
	}
	if len([]rune(input)) < MinInputLength {
		return &Result{Suggestions: []Suggestion{}, Query: input, Message: "Input too short"}, nil
	}

	token, err := sessionToken(q.SessionToken)
	if err != nil {
		return nil, errs.NewValidation(op, "sessionToken must be a UUID", err)
	}
	req := &maps.PlaceAutocompleteRequest{
		Input:        input,
		Language:     c.language,
		Types:        maps.AutocompletePlaceTypeEstablishment,
		Components:   map[maps.Component][]string{maps.ComponentCountry: {c.country}},
		SessionToken: token,
	}
	if q.Origin != nil {
		req.Origin = &maps.LatLng{Lat: q.Origin.Latitude, Lng: q.Origin.Longitude}
	}

	var resp maps.AutocompleteResponse
	start := time.Now()
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.client.PlaceAutocomplete(ctx, req)
		return err
	}, nil)
	if err != nil {
		metrics.ObserveUpstream("google_places", "autocomplete", 0, time.Since(start))
		return nil, errs.NewUpstream(op, "google_places", "autocomplete failed", 0, false, err)
	}
	metrics.ObserveUpstream("google_places", "autocomplete", 200, time.Since(start))

	allowed := VerticalTypes(q.Vertical)
	tok := uuid.UUID(token).String()
	out := make([]Suggestion, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if len(allowed) > 0 && !anyType(p.Types, allowed) {
			continue
		}
		out = append(out, toSuggestion(p, tok))
	}
	return &Result{Suggestions: out, SessionToken: tok, Query: input, Count: len(out)}, nil
}

func sessionToken(s string) (maps.PlaceAutocompleteSessionToken, error) {
	if s == "" {
		return maps.NewPlaceAutocompleteSessionToken(), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return maps.PlaceAutocompleteSessionToken{}, err
	}
	return maps.PlaceAutocompleteSessionToken(u), nil
}

func toSuggestion(p maps.AutocompletePrediction, token string) Suggestion {
	main, secondary := p.StructuredFormatting.MainText, p.StructuredFormatting.SecondaryText
	var parts []string
	for _, s := range []string{main, secondary} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	desc := strings.Join(parts, ", ")
	if desc == "" {
		desc = p.Description
	}
	types := p.Types
	if types == nil {
		types = []string{}
	}
	s := Suggestion{
		PlaceID:              p.PlaceID,
		Description:          desc,
		StructuredFormatting: StructuredFormatting{MainText: main, SecondaryText: secondary},
		Types:                types,
		SessionToken:         token,
	}
	if len(types) > 0 {
		pt := types[0]
		s.PrimaryType = &pt
	}
	if label, ok := TypeLabel("", types); ok {
		s.TypeES = &label
	}
	return s
}

func anyType(types []string, allowed map[string]bool) bool {
	for _, t := range types {
		if allowed[t] {
			return true
		}
	}
	return false
}
