// Package apperror provides structured error handling for the fiscal core.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. The fiscal numbering codes map one-to-one onto the
// failure modes of the allocation and lifecycle engine.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Fiscal numbering errors
	CodeResolutionNotConfigured = "RESOLUTION_NOT_CONFIGURED"
	CodeResolutionExpired       = "RESOLUTION_EXPIRED"
	CodeRangeExhausted          = "RANGE_EXHAUSTED"
	CodeAllocationContention    = "ALLOCATION_CONTENTION"
	CodeDuplicateBackfill       = "DUPLICATE_BACKFILL"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeReleaseNotPending       = "RELEASE_NOT_PENDING"
	CodeNumberOutsideResolution = "NUMBER_OUTSIDE_RESOLUTION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (series, numbers, record ids)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Fiscal numbering factories ---

// NewResolutionNotConfigured signals that a series has no numbering
// resolution at all. Fixing it is an administrative action.
func NewResolutionNotConfigured(series string) *AppError {
	return &AppError{
		Code:       CodeResolutionNotConfigured,
		Message:    "No numbering resolution configured for series",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"series": series},
	}
}

// NewResolutionExpired signals that resolutions exist for the series but
// none covers the requested date.
func NewResolutionExpired(series string) *AppError {
	return &AppError{
		Code:       CodeResolutionExpired,
		Message:    "Numbering resolution for series is expired",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"series": series},
	}
}

// NewRangeExhausted signals that the authorized numeric range is used up.
// Issuance must halt until a new resolution is configured; numbers are
// never wrapped or reused.
func NewRangeExhausted(series string, rangeEnd int64) *AppError {
	return &AppError{
		Code:       CodeRangeExhausted,
		Message:    "Authorized numbering range is exhausted",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"series": series, "range_end": rangeEnd},
	}
}

// NewAllocationContention signals that the optimistic allocation loop ran
// out of retry budget. Transient; the caller may retry.
func NewAllocationContention(series string, attempts int) *AppError {
	return &AppError{
		Code:       CodeAllocationContention,
		Message:    "Could not allocate a sequential number under concurrent load",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"series": series, "attempts": attempts},
	}
}

// NewDuplicateBackfill signals that the number being backfilled already
// exists in the ledger.
func NewDuplicateBackfill(series string, number int64) *AppError {
	return &AppError{
		Code:       CodeDuplicateBackfill,
		Message:    "Sequential number already registered",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"series": series, "number": number},
	}
}

// NewInvalidTransition signals a status change outside the transition table.
func NewInvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("Cannot transition fiscal document from %s to %s", from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"from": from, "to": to},
	}
}

// NewReleaseNotPending signals an attempt to release a record that is not pending.
func NewReleaseNotPending(status string) *AppError {
	return &AppError{
		Code:       CodeReleaseNotPending,
		Message:    "Only pending fiscal documents can be released",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"status": status},
	}
}

// NewNumberOutsideResolution signals a backfill number that lies outside
// every known resolution range for the series.
func NewNumberOutsideResolution(series string, number int64) *AppError {
	return &AppError{
		Code:       CodeNumberOutsideResolution,
		Message:    "Number lies outside every known resolution range",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"series": series, "number": number},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
