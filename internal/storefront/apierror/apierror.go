// Package apierror defines the HTTP error taxonomy shared by the storefront
// middleware and handlers. Every error response is a JSON object carrying
// at least an "error" message.
package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies an API error and fixes its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindTooManyRequests
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// Error is an API-facing error. Message is safe to show to clients; Cause is
// kept for server-side logging only.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail returns a copy of e with an extra structured field in the body.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Detail = make(map[string]any, len(e.Detail)+1)
	for k, v := range e.Detail {
		cp.Detail[k] = v
	}
	cp.Detail[key] = value
	return &cp
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func BadRequest(msg string) *Error      { return newError(KindBadRequest, msg) }
func Unauthorized(msg string) *Error    { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) *Error       { return newError(KindForbidden, msg) }
func NotFound(msg string) *Error        { return newError(KindNotFound, msg) }
func TooManyRequests(msg string) *Error { return newError(KindTooManyRequests, msg) }

// Internal wraps an unexpected failure behind a generic client message.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Cause: cause}
}

// From converts any error into an *Error. Errors that are not already API
// errors become Internal.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}

// Body renders the JSON response body for e.
func (e *Error) Body() map[string]any {
	body := make(map[string]any, len(e.Detail)+1)
	for k, v := range e.Detail {
		body[k] = v
	}
	body["error"] = e.Message
	return body
}

// Write writes err as a JSON error response.
func Write(w http.ResponseWriter, err error) {
	WriteWithBody(w, From(err), nil)
}

// WriteWithBody writes e with additional top-level fields merged into the body.
func WriteWithBody(w http.ResponseWriter, e *Error, extra map[string]any) {
	body := e.Body()
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, e.Kind.Status(), body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
