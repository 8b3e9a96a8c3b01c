package api

import (
	"net/http"

	"review-insights/internal/places"
	errs "review-insights/pkg/errors"
)

func (s *Server) placesAutocomplete() http.HandlerFunc {
	const op = "api.placesAutocomplete"
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Places == nil {
			s.fail(w, r, errs.NewConfiguration(op, "GOOGLE_MAPS_API_KEY", "Google Maps API key not configured"))
			return
		}
		var q places.Query
		if err := decode(r, &q); err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.Places.Autocomplete(r.Context(), q)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
