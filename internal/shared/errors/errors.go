package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation error")
	ErrTooLarge     = errors.New("payload too large")

	// ErrEvidenceRejected is a deterministic, user-actionable evidence decision.
	ErrEvidenceRejected = errors.New("evidence rejected")
	// ErrEvidenceError is an infrastructure fault during validation; retryable.
	ErrEvidenceError = errors.New("evidence validation failed")
	// ErrInvalidTransition is a (state, trigger) pair the lifecycle does not define.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrStaleVersion means the caller acted on an outdated complaint version.
	ErrStaleVersion = errors.New("stale version")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *AppError) Retryable() bool {
	return errors.Is(e.Err, ErrEvidenceError) || errors.Is(e.Err, ErrStaleVersion)
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// PayloadTooLarge rejects an upload over the configured limit.
func PayloadTooLarge(limit int64) *AppError {
	return &AppError{
		Err:        ErrTooLarge,
		Message:    fmt.Sprintf("upload exceeds %d bytes", limit),
		Code:       "PAYLOAD_TOO_LARGE",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// EvidenceRejected reports a photo that failed a deterministic check.
// The reason codes are joined into Details["reason_codes"].
func EvidenceRejected(photoID string, codes []string) *AppError {
	return &AppError{
		Err:        ErrEvidenceRejected,
		Message:    "photo evidence rejected",
		Code:       "EVIDENCE_REJECTED",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]string{"photo_id": photoID, "reason_codes": strings.Join(codes, ",")},
	}
}

// EvidenceError reports a validation that could not complete; the caller may retry.
func EvidenceError(photoID string, codes []string, cause error) *AppError {
	err := ErrEvidenceError
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrEvidenceError, cause)
	}
	return &AppError{
		Err:        err,
		Message:    "photo evidence could not be validated, please retry",
		Code:       "EVIDENCE_ERROR",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]string{"photo_id": photoID, "reason_codes": strings.Join(codes, ",")},
	}
}

// InvalidTransition reports a lifecycle trigger the current state does not accept.
func InvalidTransition(complaintID, from, trigger string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Message:    fmt.Sprintf("cannot apply %s while complaint is %s", trigger, from),
		Code:       "INVALID_TRANSITION",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"complaint_id": complaintID, "status": from, "trigger": trigger},
	}
}

// StaleVersion reports a lost-update attempt against an older complaint version.
func StaleVersion(complaintID string, expected, actual uint64) *AppError {
	return &AppError{
		Err:        ErrStaleVersion,
		Message:    "complaint was modified concurrently",
		Code:       "STALE_VERSION",
		HTTPStatus: http.StatusConflict,
		Details: map[string]string{
			"complaint_id": complaintID,
			"expected":     fmt.Sprint(expected),
			"actual":       fmt.Sprint(actual),
		},
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := *appErr
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Is, As and New mirror the standard library helpers.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
