// Package errors defines the sentinel errors shared across services
// and their mapping onto HTTP status codes at the API boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentExists      = errors.New("document already exists")
	ErrRunNotFound         = errors.New("run not found")
	ErrKeyNotFound         = errors.New("api key not found")
	ErrRunInProgress       = errors.New("run already in progress")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

// statusOf maps each sentinel to the status code its handlers return.
// Sentinels absent from the table fall back to 500.
var statusOf = map[error]int{
	ErrDocumentNotFound:    http.StatusNotFound,
	ErrRunNotFound:         http.StatusNotFound,
	ErrKeyNotFound:         http.StatusNotFound,
	ErrDocumentExists:      http.StatusConflict,
	ErrIdempotencyConflict: http.StatusConflict,
	ErrRunInProgress:       http.StatusConflict,
	ErrInvalidInput:        http.StatusBadRequest,
	ErrRateLimited:         http.StatusTooManyRequests,
	ErrUnauthorized:        http.StatusUnauthorized,
	ErrTimeout:             http.StatusServiceUnavailable,
}

// AppError pairs a sentinel with a human-readable message and an
// explicit status code, for cases where the table mapping is wrong
// for a specific call site.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps sentinel with a message and a status code override.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode resolves err to the status code an API handler should
// return. An AppError carries its own code; otherwise the sentinel
// chain decides.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for sentinel, code := range statusOf {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return http.StatusInternalServerError
}
