package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	errs "review-insights/pkg/errors"
	"review-insights/pkg/logging"
)

// maxBodyBytes caps request bodies; feedback text is the largest payload.
const maxBodyBytes = 1 << 20

// envelope is the JSON body of every response.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ok writes {ok:true, ...fields}.
func ok(w http.ResponseWriter, fields envelope) {
	body := envelope{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// publicError replaces the caller-facing message of err while keeping its
// kind for status mapping.
type publicError struct {
	msg string
	err error
}

func (e *publicError) Error() string   { return e.msg + ": " + e.err.Error() }
func (e *publicError) Unwrap() error   { return e.err }
func (e *publicError) Message() string { return e.msg }

func withMessage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &publicError{msg: msg, err: err}
}

// fail writes {ok:false, error} with the status of err's kind. Unexpected
// errors are logged and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	msg := errs.PublicMessage(err)
	log := s.log.Ctx(r.Context())
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", err,
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String("op", errs.Op(err)),
			logging.Any("error_context", errs.Details(err)))
		if status == http.StatusInternalServerError {
			msg = "Internal server error"
		}
	default:
		log.Debug("request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String("op", errs.Op(err)),
			logging.Error(err))
	}
	writeJSON(w, status, envelope{"ok": false, "error": msg})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	const op = "api.decode"
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewValidation(op, "request body too large", err)
		}
		return errs.NewValidation(op, "invalid JSON body", err)
	}
	return nil
}

func required(op, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.NewValidation(op, name+" is required", nil)
	}
	return nil
}
