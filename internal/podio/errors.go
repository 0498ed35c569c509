package podio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. A *RemoteError unwraps to the kind matching its status code,
// so callers can write errors.Is(err, podio.ErrNotFound).
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 << 10

// RemoteError is returned when the service answers with a non-2xx status.
type RemoteError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte

	// Code and Description are filled from the service's error document
	// ({"error": ..., "error_description": ...}) when the body is one.
	Code        string
	Description string
}

func newRemoteError(method, path string, status int, body []byte) *RemoteError {
	e := &RemoteError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       body,
	}
	var doc struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &doc) == nil {
		e.Code = doc.Error
		e.Description = doc.Description
	}
	return e
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	switch {
	case e.Description != "":
		return msg + ": " + e.Description
	case e.Code != "":
		return msg + ": " + e.Code
	case len(e.Body) > 0:
		return msg + ": " + string(e.Body)
	}
	return msg
}

// Unwrap maps the status code onto one of the package error kinds.
func (e *RemoteError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not
// a *RemoteError.
func StatusCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
