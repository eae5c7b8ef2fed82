package ai

import (
	"errors"
	"fmt"
)

// InvalidRequest represents a tool request missing its prompt or image
type InvalidRequest struct {
	Message string
}

func (e *InvalidRequest) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// TransportError represents a non-success HTTP status from the completion endpoint
type TransportError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *TransportError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("transport error: HTTP %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("transport error: HTTP %d %s", e.Status, e.StatusText)
}

// DecodeStreamError represents a reply stream that broke while being read
type DecodeStreamError struct {
	Chunks int
	Err    error
}

func (e *DecodeStreamError) Error() string {
	return fmt.Sprintf("stream decode error after %d chunks: %v", e.Chunks, e.Err)
}

func (e *DecodeStreamError) Unwrap() error { return e.Err }

func IsInvalidRequest(err error) bool {
	var e *InvalidRequest
	return errors.As(err, &e)
}

// TransportStatus returns the HTTP status carried by err, or 0.
func TransportStatus(err error) int {
	var e *TransportError
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
