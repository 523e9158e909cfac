package api

import (
	"encoding/json"
	"net/http"
)

// ErrorCode represents standardized API error codes
type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeUnverifiable     ErrorCode = "UNVERIFIABLE_PACKAGE"
	ErrCodeRateLimit        ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer   ErrorCode = "INTERNAL_SERVER_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	Request RequestInfo `json:"request,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RequestInfo contains request context for debugging
type RequestInfo struct {
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// APIError represents an internal API error with HTTP status
type APIError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error
func NewAPIError(code ErrorCode, message string, statusCode int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

// WithDetail adds a detail field to the error
func (e *APIError) WithDetail(key string, value interface{}) *APIError {
	e.Details[key] = value
	return e
}

// Common error constructors

// BadRequest creates a 400 Bad Request error
func BadRequest(message string) *APIError {
	return NewAPIError(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// Forbidden creates a 403 Forbidden error
func Forbidden(message string) *APIError {
	return NewAPIError(ErrCodeForbidden, message, http.StatusForbidden)
}

// NotFound creates a 404 Not Found error
func NotFound(resource string) *APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found", http.StatusNotFound)
}

// MethodNotAllowed creates a 405 Method Not Allowed error
func MethodNotAllowed() *APIError {
	return NewAPIError(ErrCodeMethodNotAllowed, "method not allowed", http.StatusMethodNotAllowed)
}

// Unverifiable creates a 422 error for directories that are not verifiable packages
func Unverifiable(message string) *APIError {
	return NewAPIError(ErrCodeUnverifiable, message, http.StatusUnprocessableEntity)
}

// RateLimitExceeded creates a 429 Rate Limit Exceeded error
func RateLimitExceeded(message string) *APIError {
	return NewAPIError(ErrCodeRateLimit, message, http.StatusTooManyRequests)
}

// InternalServerError creates a 500 Internal Server Error
func InternalServerError(message string) *APIError {
	return NewAPIError(ErrCodeInternalServer, message, http.StatusInternalServerError)
}

// WriteError writes an API error response
func WriteError(w http.ResponseWriter, r *http.Request, err *APIError) {
	response := ErrorResponse{
		Error: ErrorDetail{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
		},
		Request: RequestInfo{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: GetRequestID(r),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(response)
}

type contextKey string

const requestIDKey contextKey = "request_id"

// GetRequestID extracts request ID from context (set by middleware)
func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
