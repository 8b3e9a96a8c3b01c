package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "review-insights/pkg/errors"
)

const predictions = `{
  "status": "OK",
  "predictions": [
    {
      "description": "La Cabrera, Cabrera, Buenos Aires, Argentina",
      "place_id": "ChIJ-cabrera",
      "types": ["restaurant", "food", "point_of_interest", "establishment"],
      "structured_formatting": {"main_text": "La Cabrera", "secondary_text": "Cabrera, Buenos Aires"}
    },
    {
      "description": "Cabrera Abogados, Córdoba, Argentina",
      "place_id": "ChIJ-abogados",
      "types": ["lawyer", "point_of_interest", "establishment"],
      "structured_formatting": {"main_text": "Cabrera Abogados", "secondary_text": "Córdoba"}
    }
  ]
}`

func newTestClient(t *testing.T, calls *atomic.Int32) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/maps/api/place/autocomplete/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "country:ar", q.Get("components"))
		assert.Equal(t, "es-AR", q.Get("language"))
		assert.Equal(t, "establishment", q.Get("types"))
		assert.NotEmpty(t, q.Get("sessiontoken"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(predictions))
	}))
	t.Cleanup(srv.Close)

	c, err := New("test-key", "AR", "es-AR", nil, WithBaseURL(srv.URL))
	require.NoError(t, err)
	return c
}

func TestAutocomplete(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	res, err := c.Autocomplete(context.Background(), Query{Input: "  cabrera "})
	require.NoError(t, err)
	assert.Equal(t, "cabrera", res.Query)
	require.Equal(t, 2, res.Count)
	assert.NotEmpty(t, res.SessionToken)

	first := res.Suggestions[0]
	assert.Equal(t, "ChIJ-cabrera", first.PlaceID)
	assert.Equal(t, "La Cabrera, Cabrera, Buenos Aires", first.Description)
	require.NotNil(t, first.TypeES)
	assert.Equal(t, "Restaurante", *first.TypeES)
	assert.Equal(t, res.SessionToken, first.SessionToken)
	assert.Equal(t, "Estudio jurídico", *res.Suggestions[1].TypeES)
}

func TestAutocompleteVerticalFilter(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	res, err := c.Autocomplete(context.Background(), Query{Input: "cabrera", Vertical: "gastronomia"})
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, "ChIJ-cabrera", res.Suggestions[0].PlaceID)
}

func TestAutocompleteKeepsSessionToken(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	tok := "6f1c2a8e-4b7d-4d1e-9a51-0c9d4e7f2b10"
	res, err := c.Autocomplete(context.Background(), Query{Input: "cabrera", SessionToken: tok})
	require.NoError(t, err)
	assert.Equal(t, tok, res.SessionToken)

	_, err = c.Autocomplete(context.Background(), Query{Input: "cabrera", SessionToken: "not-a-uuid"})
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestAutocompleteShortInput(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls)

	res, err := c.Autocomplete(context.Background(), Query{Input: "a"})
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, "Input too short", res.Message)

	_, err = c.Autocomplete(context.Background(), Query{Input: "   "})
	assert.True(t, errs.Is(err, errs.ErrValidation))
	assert.Equal(t, int32(0), calls.Load())
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("", "ar", "es-AR", nil)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))
}

func TestTypeLabel(t *testing.T) {
	tests := []struct {
		primary string
		types   []string
		want    string
		ok      bool
	}{
		{"cafe", nil, "Cafetería", true},
		{"", []string{"point_of_interest", "pharmacy"}, "Farmacia", true},
		{"night_club", []string{"establishment"}, "night_club", true},
		{"", []string{"establishment"}, "establishment", true},
		{"", nil, "", false},
	}
	for _, tt := range tests {
		got, ok := TypeLabel(tt.primary, tt.types)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}
	assert.Nil(t, VerticalTypes("mineria"))
	assert.True(t, VerticalTypes("retail")["supermarket"])
}
