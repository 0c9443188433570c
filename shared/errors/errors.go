package errors

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Client errors (4xx equivalent)
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeRateLimited  ErrorType = "RATE_LIMITED"
	ErrorTypePrecondition ErrorType = "PRECONDITION_FAILED"

	// Server errors (5xx equivalent)
	ErrorTypeInternal       ErrorType = "INTERNAL"
	ErrorTypeUnavailable    ErrorType = "UNAVAILABLE"
	ErrorTypeTimeout        ErrorType = "TIMEOUT"
	ErrorTypeNotImplemented ErrorType = "NOT_IMPLEMENTED"

	// Business logic errors
	ErrorTypeBusinessRule ErrorType = "BUSINESS_RULE"
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeDuplicate    ErrorType = "DUPLICATE"
	ErrorTypeExpired      ErrorType = "EXPIRED"

	// Indexer pipeline errors (spec.md §7)
	ErrorTypeFatalConfig         ErrorType = "FATAL_CONFIG"
	ErrorTypeUpstreamUnavailable ErrorType = "UPSTREAM_UNAVAILABLE"
	ErrorTypeStorePersistence    ErrorType = "STORE_PERSISTENCE"
	ErrorTypeNodeTransport       ErrorType = "NODE_TRANSPORT"
	ErrorTypeNodeContractRevert  ErrorType = "NODE_CONTRACT_REVERT"
	ErrorTypeHTTPStatus          ErrorType = "HTTP_STATUS"
	ErrorTypeHTTPTransport       ErrorType = "HTTP_TRANSPORT"
	ErrorTypeURIParse            ErrorType = "URI_PARSE"
	ErrorTypeContentParse        ErrorType = "CONTENT_PARSE"
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Stack      []string               `json:"-"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// captureStack captures the current stack trace
func captureStack() []string {
	var stack []string
	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn != nil && !strings.Contains(fn.Name(), "runtime.") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}
	return stack
}

// New creates a new error
func New(errorType ErrorType, code, message string) *Error {
	e := &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}

	// Set default status codes
	switch errorType {
	case ErrorTypeNotFound:
		e.StatusCode = http.StatusNotFound
	case ErrorTypeInvalidInput, ErrorTypeValidation:
		e.StatusCode = http.StatusBadRequest
	case ErrorTypeUnauthorized:
		e.StatusCode = http.StatusUnauthorized
	case ErrorTypeForbidden:
		e.StatusCode = http.StatusForbidden
	case ErrorTypeConflict, ErrorTypeDuplicate:
		e.StatusCode = http.StatusConflict
	case ErrorTypeRateLimited:
		e.StatusCode = http.StatusTooManyRequests
	case ErrorTypePrecondition, ErrorTypeExpired:
		e.StatusCode = http.StatusPreconditionFailed
	case ErrorTypeTimeout:
		e.StatusCode = http.StatusRequestTimeout
	case ErrorTypeUnavailable:
		e.StatusCode = http.StatusServiceUnavailable
	case ErrorTypeNotImplemented:
		e.StatusCode = http.StatusNotImplemented
	case ErrorTypeFatalConfig, ErrorTypeURIParse, ErrorTypeContentParse:
		e.StatusCode = http.StatusBadRequest
	case ErrorTypeUpstreamUnavailable, ErrorTypeNodeTransport, ErrorTypeHTTPTransport:
		e.StatusCode = http.StatusServiceUnavailable
	case ErrorTypeStorePersistence:
		e.StatusCode = http.StatusInternalServerError
	case ErrorTypeNodeContractRevert:
		e.StatusCode = http.StatusUnprocessableEntity
	case ErrorTypeHTTPStatus:
		e.StatusCode = http.StatusBadGateway
	default:
		e.StatusCode = http.StatusInternalServerError
	}

	return e
}

// Common error constructors
func NotFound(resource string, id interface{}) *Error {
	return New(ErrorTypeNotFound, "RESOURCE_NOT_FOUND",
		fmt.Sprintf("%s not found", resource)).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func InvalidInput(field string, reason string) *Error {
	return New(ErrorTypeInvalidInput, "INVALID_INPUT",
		fmt.Sprintf("Invalid input for field '%s': %s", field, reason)).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func Unauthorized(reason string) *Error {
	return New(ErrorTypeUnauthorized, "UNAUTHORIZED", reason)
}

func Forbidden(resource string, action string) *Error {
	return New(ErrorTypeForbidden, "FORBIDDEN",
		fmt.Sprintf("Forbidden: cannot %s %s", action, resource)).
		WithDetails("resource", resource).
		WithDetails("action", action)
}

func Conflict(resource string, reason string) *Error {
	return New(ErrorTypeConflict, "CONFLICT",
		fmt.Sprintf("Conflict with %s: %s", resource, reason)).
		WithDetails("resource", resource)
}

func Internal(message string) *Error {
	return New(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

func Timeout(operation string) *Error {
	return New(ErrorTypeTimeout, "TIMEOUT",
		fmt.Sprintf("Operation '%s' timed out", operation)).
		WithDetails("operation", operation)
}

func ValidationError(field string, constraint string) *Error {
	return New(ErrorTypeValidation, "VALIDATION_ERROR",
		fmt.Sprintf("Validation failed for '%s': %s", field, constraint)).
		WithDetails("field", field).
		WithDetails("constraint", constraint)
}

func Duplicate(resource string, field string, value interface{}) *Error {
	return New(ErrorTypeDuplicate, "DUPLICATE",
		fmt.Sprintf("%s with %s '%v' already exists", resource, field, value)).
		WithDetails("resource", resource).
		WithDetails("field", field).
		WithDetails("value", value)
}

// FatalConfig reports a configuration error that must abort startup.
func FatalConfig(message string) *Error {
	return New(ErrorTypeFatalConfig, "FATAL_CONFIG", message)
}

// UpstreamUnavailable reports a failure to reach the event-source database.
// Fatal to the current page (spec.md §7): the loop retries from the same
// block on the next run.
func UpstreamUnavailable(operation string, cause error) *Error {
	return New(ErrorTypeUpstreamUnavailable, "UPSTREAM_UNAVAILABLE",
		fmt.Sprintf("event source unavailable during %s", operation)).
		WithDetails("operation", operation).WithCause(cause)
}

// StorePersistence reports a failure while flushing the update cache.
// Fatal: the page is not marked processed.
func StorePersistence(operation string, cause error) *Error {
	return New(ErrorTypeStorePersistence, "STORE_PERSISTENCE",
		fmt.Sprintf("persistence failed during %s", operation)).
		WithDetails("operation", operation).WithCause(cause)
}

// NodeTransport reports a retryable EVM JSON-RPC transport failure.
func NodeTransport(method string, cause error) *Error {
	return New(ErrorTypeNodeTransport, "NODE_TRANSPORT",
		fmt.Sprintf("node transport error calling %s", method)).
		WithDetails("method", method).WithCause(cause)
}

// NodeContractRevert reports a non-retryable contract-call revert; reason
// is the decoded revert string (spec.md §4.4).
func NodeContractRevert(reason string) *Error {
	return New(ErrorTypeNodeContractRevert, "NODE_CONTRACT_REVERT", reason).
		WithDetails("reason", reason)
}

// HTTPStatus reports a non-2xx HTTP response from a metadata fetch
// (spec.md §4.7 step 4); code is the status line, e.g. "404 Not Found".
func HTTPStatus(code string) *Error {
	return New(ErrorTypeHTTPStatus, "HTTP_STATUS", code).WithDetails("code", code)
}

// HTTPTransport reports a network-level failure during a metadata fetch.
func HTTPTransport(cause error) *Error {
	return New(ErrorTypeHTTPTransport, "HTTP_TRANSPORT", "http transport error").WithCause(cause)
}

// URIParse reports a URI that could not be classified (spec.md §4.7 step 2).
func URIParse(reason string) *Error {
	return New(ErrorTypeURIParse, "URI_PARSE", reason).WithDetails("reason", reason)
}

// ContentParse reports an unsupported or malformed metadata content body
// (spec.md §4.7 step 4's "InvalidContent").
func ContentParse(reason string) *Error {
	return New(ErrorTypeContentParse, "CONTENT_PARSE", reason).WithDetails("reason", reason)
}

// ErrorHandler provides context-aware error handling
type ErrorHandler struct {
	ctx     context.Context
	service string
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(ctx context.Context, service string) *ErrorHandler {
	return &ErrorHandler{
		ctx:     ctx,
		service: service,
	}
}

// Handle processes an error with context
func (h *ErrorHandler) Handle(err error) *Error {
	if err == nil {
		return nil
	}

	// Check if it's already our error type
	if e, ok := err.(*Error); ok {
		return e
	}

	// Check for specific error types
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "not found"):
		return NotFound("resource", "unknown").WithCause(err)
	case strings.Contains(errStr, "duplicate"):
		return Duplicate("resource", "field", "value").WithCause(err)
	case strings.Contains(errStr, "timeout"):
		return Timeout("operation").WithCause(err)
	case strings.Contains(errStr, "unauthorized"):
		return Unauthorized(errStr).WithCause(err)
	case strings.Contains(errStr, "forbidden"):
		return Forbidden("resource", "action").WithCause(err)
	default:
		return Internal(errStr).WithCause(err)
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == errorType
	}
	return false
}

// GetCode returns the error code if it's our error type
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return "UNKNOWN"
}
