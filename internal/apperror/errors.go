// Package apperror defines the closed set of failures the API reports to clients.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind identifies which failure class an Error belongs to
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConnection
	KindQuery
	KindTimeout
	KindNotFound
)

// Error codes surfaced in the error envelope
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidTimeFormat = "INVALID_TIME_FORMAT"
	CodeConnection        = "DATABASE_CONNECTION_ERROR"
	CodeQuery             = "DATABASE_QUERY_ERROR"
	CodeTimeout           = "DATABASE_TIMEOUT_ERROR"
	CodeDataNotFound      = "DATA_NOT_FOUND"
	CodeResourceNotFound  = "RESOURCE_NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

const queryPreviewLen = 100

// Error is the single error type carried from the point of failure to the HTTP boundary
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Timestamp time.Time
	Cause     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, code, message string, details map[string]interface{}, cause error) *Error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Status:    statusFor(kind),
		Details:   details,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConnection, KindQuery, KindTimeout:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one invalid request field
type FieldError struct {
	Field           string   `json:"field"`
	Message         string   `json:"message"`
	Value           string   `json:"value,omitempty"`
	ExpectedFormats []string `json:"expected_formats,omitempty"`
}

// NewValidation aggregates every invalid field into one failure
func NewValidation(fields []FieldError) *Error {
	message := "Request validation failed"
	if len(fields) == 1 {
		message = fields[0].Field + ": " + fields[0].Message
	} else if len(fields) > 1 {
		message = fmt.Sprintf("Request validation failed: %d invalid fields", len(fields))
	}
	return newError(KindValidation, CodeValidation, message, map[string]interface{}{
		"errors": fields,
	}, nil)
}

// NewInvalidTimeFormat reports a time string matching neither accepted grammar
func NewInvalidTimeFormat(provided string, expected []string, cause error) *Error {
	details := map[string]interface{}{
		"provided":         provided,
		"expected_formats": expected,
	}
	return newError(KindValidation, CodeInvalidTimeFormat, "Invalid time format: "+provided, details, cause)
}

// NewConnection reports an unreachable backend
func NewConnection(message string, details map[string]interface{}, cause error) *Error {
	if message == "" {
		message = "Unable to connect to database"
	}
	return newError(KindConnection, CodeConnection, message, details, cause)
}

// NewQuery reports a query the backend rejected or failed to run.
// Only a preview of the query text is kept in the details.
func NewQuery(message, query string, details map[string]interface{}, cause error) *Error {
	if message == "" {
		message = "Failed to execute database query"
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	if query != "" {
		details["query_preview"] = QueryPreview(query)
	}
	return newError(KindQuery, CodeQuery, message, details, cause)
}

// NewTimeout reports a query that exceeded its deadline
func NewTimeout(timeout time.Duration, details map[string]interface{}, cause error) *Error {
	if details == nil {
		details = map[string]interface{}{}
	}
	if timeout > 0 {
		details["timeout_seconds"] = timeout.Seconds()
	}
	return newError(KindTimeout, CodeTimeout, "Database query timed out", details, cause)
}

// NewDataNotFound reports an empty latest-candle lookup
func NewDataNotFound(symbol string) *Error {
	return newError(KindNotFound, CodeDataNotFound, "No data found for symbol: "+symbol, map[string]interface{}{
		"symbol": symbol,
	}, nil)
}

// NewResourceNotFound reports an unknown route
func NewResourceNotFound(path string) *Error {
	return newError(KindNotFound, CodeResourceNotFound, "Resource not found: "+path, map[string]interface{}{
		"path": path,
	}, nil)
}

// NewInternal wraps an unclassified failure
func NewInternal(cause error) *Error {
	return newError(KindInternal, CodeInternal, "An internal error occurred. Please try again later.", nil, cause)
}

// From converts any error into an *Error, treating unknown errors as internal
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}

// QueryPreview truncates query text for error details
func QueryPreview(query string) string {
	if len(query) > queryPreviewLen {
		return query[:queryPreviewLen] + "..."
	}
	return query
}

// Response is the serialized error envelope
type Response struct {
	Success   bool                   `json:"success"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToResponse builds the error envelope. The raw cause is only exposed when exposeCause is set.
func (e *Error) ToResponse(exposeCause bool) Response {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	if exposeCause && e.Cause != nil {
		details["error"] = e.Cause.Error()
	}
	return Response{
		Success:   false,
		ErrorCode: e.Code,
		Message:   e.Message,
		Details:   details,
		Timestamp: e.Timestamp,
	}
}
