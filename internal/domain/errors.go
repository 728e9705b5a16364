package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates missing or rejected credentials.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// APIError is a canonical error surfaced on the inbound HTTP contract.
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`

	// StatusCode overrides the default status mapping when set.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message}
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return &APIError{Type: ErrorTypeServer, Message: message}
}

// ProviderError is a non-success HTTP response from an upstream provider,
// carrying the status code and the response body read as text. It is never
// retried automatically.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Body)
}

// AsProviderError unwraps err into a *ProviderError if possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCancellation reports whether err is a user-initiated cancellation.
// Cancellations are expected, not exceptional: adapters neither log them as
// errors nor convert them into a terminal error chunk.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled")
}
