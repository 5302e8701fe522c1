// Package domain holds the payload model that flows through the
// normalization pipeline and the error types it reports.
package domain

import (
	"fmt"
	"net/http"
)

// StageExecutionError is any fault raised while a stage processes a payload.
// The runner records it and continues with the payload the stage received.
type StageExecutionError struct {
	Stage    string
	CallType CallType
	Err      error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.CallType, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// SerializationFault reports that messages could not be rendered for a
// dispatch record. It never leaves the observability stage.
type SerializationFault struct {
	Err error
}

func (e *SerializationFault) Error() string {
	return fmt.Sprintf("serialize messages: %v", e.Err)
}

func (e *SerializationFault) Unwrap() error {
	return e.Err
}

// ErrorType represents the category of an API error returned by the host.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates an unknown route or call type.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeUpstream indicates the provider could not be reached.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// APIError is an error surfaced to HTTP clients of the host.
type APIError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message}
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// ErrUpstream creates an upstream error.
func ErrUpstream(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstream, Message: message}
}
