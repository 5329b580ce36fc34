package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches an APIError with status 401.
	ErrUnauthorized = errors.New("not authenticated")
	// ErrNotFound matches an APIError with status 404.
	ErrNotFound = errors.New("not found")
)

// APIError is a failure the API reported itself. Message is the "error"
// field of the response body, passed through verbatim.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Endpoint, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: %s (%d)", e.Endpoint, e.Message, e.Status)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// TransportError covers everything that kept a usable answer from arriving:
// connection failures, timeouts, an open circuit breaker, or a body that did
// not decode.
type TransportError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerMessage returns the verbatim server message carried by err, or
// fallback when err is not an APIError or the server sent no message.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsTransport reports whether err is a network or decode failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
