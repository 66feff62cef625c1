package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors and unreadable bodies.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response that arrived but could not be parsed.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassUnexpected represents non-2xx statuses outside 4xx/5xx (1xx, 3xx).
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// HTTPError represents a failed API request with additional context.
type HTTPError struct {
	StatusCode int // 0 for network errors
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass carried by err, or ErrorClassNetwork when
// err does not wrap an *HTTPError.
func ClassOf(err error) ErrorClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.ErrorClass
	}
	return ErrorClassNetwork
}

// classifyStatus maps a non-2xx HTTP status to an ErrorClass.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer:
		return true
	case ErrorClassNetwork:
		return true
	default:
		// 4xx, decode and unexpected statuses will not change on retry
		return false
	}
}
