package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that carries a stable code and the
// upstream status used for transient/permanent classification.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so copies produced by WithInternal still
// compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	// ErrOffline marks a call that failed because the client has no connectivity.
	ErrOffline = &AppError{
		Code:       "OFFLINE",
		Message:    "No network connectivity",
		StatusCode: 0,
	}

	// ErrRateLimited maps upstream throttling responses.
	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Remote store is throttling requests",
		StatusCode: http.StatusTooManyRequests,
	}

	// ErrUpstreamUnavailable covers remote server errors (5xx).
	ErrUpstreamUnavailable = &AppError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "Remote store is unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrLocalStorage is fatal to the write that triggered it. It is kept
	// distinct from remote failures because it means a queued mutation
	// could not be recorded at all.
	ErrLocalStorage = &AppError{
		Code:       "LOCAL_STORAGE_UNAVAILABLE",
		Message:    "Local storage is full or blocked",
		StatusCode: http.StatusInsufficientStorage,
	}

	// ErrSessionExpired signals that no user identity could be resolved.
	ErrSessionExpired = &AppError{
		Code:       "SESSION_EXPIRED",
		Message:    "Please sign in again (session expired)",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// FromStatus maps an upstream HTTP status onto the shared error taxonomy.
func FromStatus(status int, message string) *AppError {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited.WithInternal(errors.New(message))
	case status >= http.StatusInternalServerError:
		cpy := *ErrUpstreamUnavailable
		cpy.StatusCode = status
		cpy.Internal = errors.New(message)
		return &cpy
	case status == http.StatusUnauthorized:
		return ErrSessionExpired.WithInternal(errors.New(message))
	case status == http.StatusForbidden:
		return ErrForbidden.WithInternal(errors.New(message))
	case status == http.StatusNotFound:
		return ErrNotFound.WithInternal(errors.New(message))
	default:
		return &AppError{
			Code:       "REMOTE_REJECTED",
			Message:    message,
			StatusCode: status,
		}
	}
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// IsTransient reports whether a failure is expected to succeed on retry:
// lost connectivity, upstream throttling (429), or upstream server errors (>= 500).
// Everything else is permanent and must not be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrOffline) {
		return true
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode == http.StatusTooManyRequests ||
			appErr.StatusCode >= http.StatusInternalServerError
	}

	return false
}
