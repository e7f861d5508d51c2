package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the kind of failure. Callers are only expected to
// branch on the type (and occasionally the code), never on the message.
type ErrorType string

const (
	// Query compilation errors: the query cannot be satisfied by the schema
	ErrorTypeCompile ErrorType = "COMPILE"

	// Traversal errors: the query shape or a cardinality assumption was violated
	ErrorTypeTraversal ErrorType = "TRAVERSAL"

	// Partial batch failures recovered locally by retrying
	ErrorTypeTransient ErrorType = "TRANSIENT"
	ErrorTypeTimeout   ErrorType = "TIMEOUT"

	// Malformed opaque identifiers and cursors
	ErrorTypeIdentifier ErrorType = "IDENTIFIER"

	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeDatabase     ErrorType = "DATABASE"
	ErrorTypeInternal     ErrorType = "INTERNAL"
)

// Error codes refine an ErrorType.
const (
	CodeIndexNotFound        = "INDEX_NOT_FOUND"
	CodeUnsupportedRange     = "UNSUPPORTED_RANGE"
	CodeUnsupportedType      = "UNSUPPORTED_TYPE"
	CodeUnsupportedTraversal = "UNSUPPORTED_TRAVERSAL"
	CodeSingleItemNotFound   = "SINGLE_ITEM_NOT_FOUND"
	CodeInvalidIdentifier    = "INVALID_IDENTIFIER"
	CodeUnprocessedItems     = "UNPROCESSED_ITEMS"
	CodeBatchTimeout         = "BATCH_TIMEOUT"
	CodeUnknownTable         = "UNKNOWN_TABLE"
	CodeMissingToken         = "MISSING_TOKEN"
	CodeExpiredToken         = "EXPIRED_TOKEN"
	CodeInvalidToken         = "INVALID_TOKEN"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails merges error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	return e.WithDetails(map[string]interface{}{key: value})
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

func newError(errType ErrorType, code, message string, status int) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// Compile errors

// NewIndexNotFoundError is returned when neither the primary key nor any
// secondary index of a table can serve the requested attributes.
func NewIndexNotFoundError(table string, attributes []string) *AppError {
	return newError(ErrorTypeCompile, CodeIndexNotFound,
		fmt.Sprintf("no index of table '%s' can serve attributes [%s]", table, strings.Join(attributes, ", ")),
		http.StatusBadRequest,
	).WithDetails(map[string]interface{}{"table": table, "attributes": attributes})
}

// NewUnsupportedRangeError reports a range descriptor the compiler cannot express.
func NewUnsupportedRangeError(attribute, reason string) *AppError {
	return newError(ErrorTypeCompile, CodeUnsupportedRange,
		fmt.Sprintf("unsupported range on '%s': %s", attribute, reason),
		http.StatusBadRequest,
	).WithDetail("attribute", attribute)
}

// NewUnsupportedTypeError reports a value that has no attribute representation.
func NewUnsupportedTypeError(attribute string, value interface{}) *AppError {
	return newError(ErrorTypeCompile, CodeUnsupportedType,
		fmt.Sprintf("unsupported value of type %T for attribute '%s'", value, attribute),
		http.StatusBadRequest,
	).WithDetail("attribute", attribute)
}

// Traversal errors

// NewUnsupportedTraversalError reports a query chain the engine cannot evaluate.
func NewUnsupportedTraversalError(message string) *AppError {
	return newError(ErrorTypeTraversal, CodeUnsupportedTraversal, message, http.StatusBadRequest)
}

// NewSingleItemNotFoundError reports a single reduction over zero or many edges.
func NewSingleItemNotFoundError(count int) *AppError {
	return newError(ErrorTypeTraversal, CodeSingleItemNotFound,
		fmt.Sprintf("expected exactly one item, found %d", count),
		http.StatusNotFound,
	).WithDetail("count", count)
}

// Identifier errors

// NewInvalidIdentifierError reports a malformed global id or cursor.
func NewInvalidIdentifierError(value, reason string) *AppError {
	return newError(ErrorTypeIdentifier, CodeInvalidIdentifier,
		fmt.Sprintf("invalid identifier: %s", reason),
		http.StatusBadRequest,
	).WithDetail("value", value)
}

// Batch errors

// NewUnprocessedItemsError describes a partial batch response. It is handled
// inside the batch layer and only surfaces wrapped in a timeout.
func NewUnprocessedItemsError(operation string, count int) *AppError {
	return newError(ErrorTypeTransient, CodeUnprocessedItems,
		fmt.Sprintf("%s left %d items unprocessed", operation, count),
		http.StatusServiceUnavailable,
	).WithDetails(map[string]interface{}{"operation": operation, "unprocessed": count})
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return newError(ErrorTypeTimeout, CodeBatchTimeout,
		fmt.Sprintf("operation '%s' timed out", operation),
		http.StatusGatewayTimeout,
	).WithDetail("operation", operation)
}

// Generic errors

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, "", message, http.StatusBadRequest)
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(ErrorTypeUnauthorized, "", message, http.StatusUnauthorized)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, "", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewUnknownTableError reports a type or table missing from the schema.
func NewUnknownTableError(name string) *AppError {
	return newError(ErrorTypeValidation, CodeUnknownTable,
		fmt.Sprintf("no table configured for '%s'", name),
		http.StatusBadRequest,
	).WithDetail("name", name)
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, err error) *AppError {
	return newError(ErrorTypeDatabase, "",
		fmt.Sprintf("database operation '%s' failed", operation),
		http.StatusInternalServerError,
	).WithCause(err)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, "", message, http.StatusInternalServerError)
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsCode checks if an error carries a specific code
func IsCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
