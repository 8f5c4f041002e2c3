package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// AppError represents an application error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Status overrides the status derived from Code when non-zero
	Status int   `json:"-"`
	Err    error `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeTooManyRequests     = "TOO_MANY_REQUESTS"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeDatabase            = "DATABASE_ERROR"
	ErrCodeConfiguration       = "CONFIGURATION_ERROR"
)

// Common error constructors
func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrCodeValidation, message, err)
}

func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrCodeNotFound, message, err)
}

// NewUpstreamError reports a synchronous fetch whose adapters were exhausted.
// A timed-out fetch is reported as 503, anything else as 502.
func NewUpstreamError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		appErr := NewAppError(ErrCodeUpstreamUnavailable, "Upstream temporarily unavailable", err)
		appErr.Status = http.StatusServiceUnavailable
		return appErr
	}
	return NewAppError(ErrCodeUpstreamUnavailable, "Failed to fetch upstream source", err)
}

func NewInternalError(message string, err error) *AppError {
	return NewAppError(ErrCodeInternal, message, err)
}

func NewDatabaseError(message string, err error) *AppError {
	return NewAppError(ErrCodeDatabase, message, err)
}

func NewConfigurationError(message string, err error) *AppError {
	return NewAppError(ErrCodeConfiguration, message, err)
}

// ErrorResponse represents an error response for API endpoints
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// Response is the success envelope shared by every JSON endpoint
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// WriteJSON writes a success envelope
func WriteJSON(w http.ResponseWriter, data any) {
	WriteRawJSON(w, http.StatusOK, Response{Code: http.StatusOK, Message: "ok", Data: data})
}

// WriteRawJSON writes any value as JSON with the given status
func WriteRawJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes an error response to an HTTP response writer
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, err *AppError) {
	response := ErrorResponse{
		Code:    statusCode,
		Message: err.Message,
	}
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	WriteRawJSON(w, statusCode, response)
}

// GetHTTPStatusCode returns the appropriate HTTP status code for an error
func GetHTTPStatusCode(err *AppError) int {
	if err.Status != 0 {
		return err.Status
	}

	switch err.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeInternal, ErrCodeDatabase, ErrCodeConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError converts any error into an AppError, defaulting to Internal
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("An unexpected error occurred", err)
}

// HandleError handles an error and writes an appropriate HTTP response
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := AsAppError(err)
	WriteErrorResponse(w, r, GetHTTPStatusCode(appErr), appErr)
}
