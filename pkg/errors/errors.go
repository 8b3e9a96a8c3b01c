// Package errors provides the structured error kinds used across the service.
// Handlers map kinds to HTTP statuses with HTTPStatus; the analyzer uses
// UpstreamError.Retryable to decide whether a failed call is worth repeating.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ValidationError indicates bad input or a malformed upstream payload.
type ValidationError struct {
	Op  string // where it happened (package.Function)
	Msg string // human friendly message (no PII)
	Err error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("validation: %s: %s", e.Op, e.Msg)
}

func (e *ValidationError) Unwrap() error           { return e.Err }
func (e *ValidationError) Operation() string       { return e.Op }
func (e *ValidationError) Message() string         { return e.Msg }
func (e *ValidationError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewValidation(op, msg string, err error) error {
	return &ValidationError{Op: op, Msg: msg, Err: err}
}

// ConfigurationError means the process cannot do the requested work with the
// configuration it was started with (missing API key, unknown provider).
type ConfigurationError struct {
	Op  string
	Key string // env key at fault, if any
	Msg string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Key != "" {
		return fmt.Sprintf("configuration: %s: %s (%s)", e.Op, e.Msg, e.Key)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Op, e.Msg)
}

func (e *ConfigurationError) Operation() string { return e.Op }
func (e *ConfigurationError) Message() string   { return e.Msg }
func (e *ConfigurationError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "key": e.Key}
}

func NewConfiguration(op, key, msg string) error {
	return &ConfigurationError{Op: op, Key: key, Msg: msg}
}

// DBError represents database access/operation failures.
type DBError struct {
	Op  string
	Msg string
	Err error
}

func (e *DBError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("db: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("db: %s: %s", e.Op, e.Msg)
}

func (e *DBError) Unwrap() error           { return e.Err }
func (e *DBError) Operation() string       { return e.Op }
func (e *DBError) Message() string         { return e.Msg }
func (e *DBError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewDB(op, msg string, err error) error { return &DBError{Op: op, Msg: msg, Err: err} }

// UpstreamError is a failure of an external service (LLM, Places, auth API).
// StatusCode is 0 for transport failures.
type UpstreamError struct {
	Op         string
	System     string // "openai", "gemini", "google", "supabase"
	Msg        string
	StatusCode int
	Retryable  bool
	RetryAfter time.Duration // server supplied hint, zero when absent
	Err        error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	sys := e.System
	if sys == "" {
		sys = "upstream"
	}
	s := fmt.Sprintf("%s: %s: %s", sys, e.Op, e.Msg)
	if e.StatusCode != 0 {
		s += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *UpstreamError) Unwrap() error     { return e.Err }
func (e *UpstreamError) Operation() string { return e.Op }
func (e *UpstreamError) Message() string   { return e.Msg }
func (e *UpstreamError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "system": e.System, "status": e.StatusCode, "retryable": e.Retryable}
}

func NewUpstream(op, system, msg string, status int, retryable bool, err error) error {
	return &UpstreamError{Op: op, System: system, Msg: msg, StatusCode: status, Retryable: retryable, Err: err}
}

// AuthError is an authentication (401) or ownership (403) failure.
type AuthError struct {
	Op        string
	Msg       string
	Forbidden bool
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	kind := "unauthorized"
	if e.Forbidden {
		kind = "forbidden"
	}
	return fmt.Sprintf("%s: %s: %s", kind, e.Op, e.Msg)
}

func (e *AuthError) Operation() string       { return e.Op }
func (e *AuthError) Message() string         { return e.Msg }
func (e *AuthError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewUnauthorized(op, msg string) error { return &AuthError{Op: op, Msg: msg} }
func NewForbidden(op, msg string) error    { return &AuthError{Op: op, Msg: msg, Forbidden: true} }

// NotFoundError signals a missing row addressed by the caller.
type NotFoundError struct {
	Op       string
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.ID == "" {
		return fmt.Sprintf("not found: %s: %s", e.Op, e.Resource)
	}
	return fmt.Sprintf("not found: %s: %s %s", e.Op, e.Resource, e.ID)
}

func (e *NotFoundError) Operation() string { return e.Op }
func (e *NotFoundError) Message() string   { return e.Resource + " not found" }
func (e *NotFoundError) Context() map[string]any {
	return map[string]any{"op": e.Op, "resource": e.Resource, "id": e.ID}
}

func NewNotFound(op, resource, id string) error {
	return &NotFoundError{Op: op, Resource: resource, ID: id}
}

// BizError is for domain rule failures that aren't programmer bugs
// (e.g. competitor limit reached).
type BizError struct {
	Op  string
	Msg string
	Err error
}

func (e *BizError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("biz: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("biz: %s: %s", e.Op, e.Msg)
}

func (e *BizError) Unwrap() error           { return e.Err }
func (e *BizError) Operation() string       { return e.Op }
func (e *BizError) Message() string         { return e.Msg }
func (e *BizError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewBiz(op, msg string, err error) error { return &BizError{Op: op, Msg: msg, Err: err} }

// Kind sentinels for Is. Example: if errors.Is(err, errors.ErrValidation) { ... }
var (
	ErrValidation    = &ValidationError{}
	ErrConfiguration = &ConfigurationError{}
	ErrDB            = &DBError{}
	ErrUpstream      = &UpstreamError{}
	ErrAuth          = &AuthError{}
	ErrNotFound      = &NotFoundError{}
	ErrBiz           = &BizError{}
)

// Is reports whether err is of the same kind as target, using errors.As semantics
// for the kinds above and errors.Is otherwise.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *ValidationError:
		var v *ValidationError
		return errors.As(err, &v)
	case *ConfigurationError:
		var c *ConfigurationError
		return errors.As(err, &c)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	case *UpstreamError:
		var u *UpstreamError
		return errors.As(err, &u)
	case *AuthError:
		var a *AuthError
		return errors.As(err, &a)
	case *NotFoundError:
		var n *NotFoundError
		return errors.As(err, &n)
	case *BizError:
		var b *BizError
		return errors.As(err, &b)
	default:
		return errors.Is(err, target)
	}
}

// Op returns the operation recorded by the outermost typed error in err's
// chain, or "" when there is none.
func Op(err error) string {
	var o interface{ Operation() string }
	if errors.As(err, &o) {
		return o.Operation()
	}
	return ""
}

// Details returns the structured context of the outermost typed error in
// err's chain for log fields.
func Details(err error) map[string]any {
	var c interface{ Context() map[string]any }
	if errors.As(err, &c) {
		return c.Context()
	}
	return nil
}

// IsRetryable reports whether err is an UpstreamError marked retryable.
func IsRetryable(err error) bool {
	var u *UpstreamError
	if errors.As(err, &u) {
		return u.Retryable
	}
	return false
}

// HTTPStatus maps an error kind to the response status handlers return.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var a *AuthError
	if errors.As(err, &a) {
		if a.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	}
	switch {
	case Is(err, ErrValidation), Is(err, ErrBiz):
		return http.StatusBadRequest
	case Is(err, ErrNotFound):
		return http.StatusNotFound
	case Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	case Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a message safe to show API callers.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	type messager interface{ Message() string }
	var m messager
	if errors.As(err, &m) {
		return m.Message()
	}
	return "internal error"
}
