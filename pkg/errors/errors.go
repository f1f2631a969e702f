package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Lifecycle error kinds. Match them with errors.Is.
var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrTransport              = errors.New("transport error")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrSchema                 = errors.New("schema error")
	ErrTimeout                = errors.New("timeout")
	ErrInternal               = errors.New("internal error")
)

// AppError represents a structured application error with context
type AppError struct {
	Err        error
	StatusCode int
	Message    string
	Retryable  bool
	Context    map[string]interface{}
	cause      error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap exposes both the kind sentinel and the underlying cause, if any.
func (e *AppError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

// WithContext adds additional context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause records the lower-level error that produced e.
func (e *AppError) WithCause(cause error) *AppError {
	if e.cause != nil {
		e.cause = errors.Join(e.cause, cause)
		return e
	}
	e.cause = cause
	return e
}

// NewAppError creates a new AppError with the given parameters
func NewAppError(err error, message string, statusCode int, retryable bool) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Context:    make(map[string]interface{}),
	}
}

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError

	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}

// StatusCode returns the HTTP status a console response should carry for err.
func StatusCode(err error) int {
	var appErr *AppError

	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSchema):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable name for the kind of err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrSchema):
		return "SCHEMA_ERROR"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrTransport):
		return "TRANSPORT_ERROR"
	default:
		return "INTERNAL"
	}
}

// NewInvalidTransitionError reports a guard failure on a local transition.
func NewInvalidTransitionError(state, intent, guard string) *AppError {
	return NewAppError(
		ErrInvalidTransition,
		fmt.Sprintf("invalid transition: cannot %s order in state %s: %s", intent, state, guard),
		http.StatusConflict,
		false,
	).WithContext("state", state).WithContext("intent", intent).WithContext("guard", guard)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrValidation, message, http.StatusBadRequest, false)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrNotFound, message, http.StatusNotFound, false)
}

// NewConcurrentModificationError creates a concurrent modification error
func NewConcurrentModificationError(message string) *AppError {
	return NewAppError(ErrConcurrentModification, message, http.StatusConflict, false)
}

// NewSchemaError creates a schema error
func NewSchemaError(message string) *AppError {
	return NewAppError(ErrSchema, message, http.StatusBadGateway, false)
}

// NewTransportError creates a retryable transport error
func NewTransportError(message string) *AppError {
	return NewAppError(ErrTransport, message, http.StatusServiceUnavailable, true)
}

// NewTimeoutError creates a timeout error. Timeouts are transport errors too.
func NewTimeoutError(message string) *AppError {
	return NewAppError(ErrTransport, message, http.StatusGatewayTimeout, true).WithCause(ErrTimeout)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrInternal, message, http.StatusInternalServerError, false)
}
