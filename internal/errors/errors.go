package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"codeguardian/internal/logging"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeUnavailable ErrorType = "unavailable"
)

// Error codes surfaced to API clients.
const (
	CodeConfigNotFound     = "CONFIG_NOT_FOUND"
	CodeProviderError      = "PROVIDER_ERROR"
	CodeNoCredentials      = "NO_CREDENTIALS"
	CodeEmptyInput         = "EMPTY_INPUT"
	CodeDispatchInProgress = "DISPATCH_IN_PROGRESS"
	CodeUnexpected         = "UNEXPECTED_ERROR"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// User facing messages.
const (
	NoCredentialsMessage = "No API keys set. Please add at least one API key in settings."
	UnexpectedMessage    = "An unexpected error occurred while contacting AI providers."
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
	Timestamp  time.Time              `json:"timestamp"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so sentinel AppErrors work with errors.Is.
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Type == appErr.Type && e.Code == appErr.Code
	}
	return false
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: getStatusCodeForErrorType(errorType),
		Timestamp:  time.Now(),
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if len(details) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithRequestID adds request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// getStatusCodeForErrorType maps error types to HTTP status codes
func getStatusCodeForErrorType(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeExternal:
		return http.StatusBadGateway
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrConfigNotFound     = &AppError{Type: ErrorTypeNotFound, Code: CodeConfigNotFound}
	ErrNoCredentials      = &AppError{Type: ErrorTypeValidation, Code: CodeNoCredentials}
	ErrEmptyInput         = &AppError{Type: ErrorTypeValidation, Code: CodeEmptyInput}
	ErrDispatchInProgress = &AppError{Type: ErrorTypeConflict, Code: CodeDispatchInProgress}
)

// NewConfigNotFoundError reports an unknown provider id. This is a programmer error,
// never a missing credential.
func NewConfigNotFoundError(providerID string) *AppError {
	return NewAppError(ErrorTypeNotFound, CodeConfigNotFound,
		fmt.Sprintf("no configuration for provider %q", providerID), nil).
		WithDetails(map[string]interface{}{"provider": providerID})
}

// NewNoCredentialsError is returned on the chat path when no provider has a key.
func NewNoCredentialsError() *AppError {
	return NewAppError(ErrorTypeValidation, CodeNoCredentials, NoCredentialsMessage, nil)
}

// NewEmptyInputError rejects blank input before it reaches the dispatcher.
func NewEmptyInputError(field string) *AppError {
	return NewAppError(ErrorTypeValidation, CodeEmptyInput, fmt.Sprintf("%s must not be empty", field), nil).
		WithDetails(map[string]interface{}{"field": field})
}

// NewDispatchInProgressError rejects re-entrant dispatches for a session.
func NewDispatchInProgressError() *AppError {
	return NewAppError(ErrorTypeConflict, CodeDispatchInProgress, "A request is already being processed", nil)
}

// NewUnexpectedError wraps an unhandled failure during dispatch.
func NewUnexpectedError(cause error) *AppError {
	return NewAppError(ErrorTypeInternal, CodeUnexpected, UnexpectedMessage, cause)
}

// NewProviderError wraps a per-provider failure.
func NewProviderError(provider, kind string, cause error) *AppError {
	return NewAppError(ErrorTypeExternal, CodeProviderError, fmt.Sprintf("provider %s failed", provider), cause).
		WithDetails(map[string]interface{}{"provider": provider, "kind": kind})
}

// NewValidationError creates a validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return NewAppError(ErrorTypeValidation, CodeValidationFailed, message, nil).WithDetails(details)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, "RESOURCE_NOT_FOUND", fmt.Sprintf("%s not found", resource), nil)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message, cause)
}

// NewRateLimitError rejects a client that exceeded its request budget.
func NewRateLimitError() *AppError {
	return NewAppError(ErrorTypeRateLimit, CodeRateLimitExceeded, "Rate limit exceeded", nil)
}

// NewUnavailableError reports a disabled or not yet started component.
func NewUnavailableError(component string) *AppError {
	return NewAppError(ErrorTypeUnavailable, "SERVICE_UNAVAILABLE", fmt.Sprintf("%s is not available", component), nil)
}

// AsAppError converts any error into an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Unexpected error occurred", err)
}

// ErrorHandler handles errors consistently across the application
type ErrorHandler struct {
	notifyFunc func(*AppError)
}

// NewErrorHandler creates a new error handler
func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{}
}

// SetNotificationFunction sets a function to call when errors occur
func (eh *ErrorHandler) SetNotificationFunction(fn func(*AppError)) {
	eh.notifyFunc = fn
}

// HandleError logs an error and forwards it to the notifier, if any.
func (eh *ErrorHandler) HandleError(err error) {
	if err == nil {
		return
	}

	appErr := AsAppError(err)
	logging.L_error("🚨 Error", "type", appErr.Type, "code", appErr.Code, "error", appErr.Error())
	if appErr.Details != nil {
		logging.L_debugf("   Details: %+v", appErr.Details)
	}

	if eh.notifyFunc != nil {
		eh.notifyFunc(appErr)
	}
}

// APIError represents a standardized API error response
type APIError struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}

// APIResponse represents a standardized API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// SendError writes a standardized error response
func SendError(w http.ResponseWriter, appErr *AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Error:     http.StatusText(appErr.StatusCode),
			Message:   appErr.Message,
			Code:      appErr.Code,
			Details:   appErr.Details,
			Timestamp: appErr.Timestamp,
			RequestID: appErr.RequestID,
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.L_warnf("⚠️  Failed to encode error response: %v", err)
	}
}

// SendSuccess writes a standardized success response
func SendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.L_warnf("⚠️  Failed to encode response: %v", err)
	}
}
