package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Authorization errors
	ErrCodeNotAuthorized ErrorCode = "NOT_AUTHORIZED"

	// Not found errors
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound      ErrorCode = "CALL_NOT_FOUND"
	ErrCodeRecordingNotFound ErrorCode = "RECORDING_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Call lifecycle errors
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidDuration   ErrorCode = "INVALID_DURATION"

	// Recording errors
	ErrCodeAlreadyRecording ErrorCode = "ALREADY_RECORDING"
	ErrCodeRecordingFailed  ErrorCode = "RECORDING_FAILED"

	// Transcription errors
	ErrCodeTranscriptionFailed ErrorCode = "TRANSCRIPTION_FAILED"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage        ErrorCode = "STORAGE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// NotAuthorizedError is returned when the requester is not a party to the
// session and lacks an elevated role. Never a silent no-op.
func NotAuthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeNotAuthorized, message, http.StatusForbidden)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func CallNotFoundError() *AppError {
	return NewWithStatus(ErrCodeCallNotFound, "Call not found", http.StatusNotFound)
}

func RecordingNotFoundError() *AppError {
	return NewWithStatus(ErrCodeRecordingNotFound, "Recording not found", http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

// InvalidTransitionError is returned on a state machine violation.
// Treated as a caller bug; the session is never mutated.
func InvalidTransitionError(from, event string) *AppError {
	return NewWithStatus(ErrCodeInvalidTransition,
		fmt.Sprintf("cannot apply %s from status %s", event, from), http.StatusConflict)
}

// InvalidDurationError surfaces a clamped duration. Non-fatal: the hangup
// that produced it still succeeds with duration 0.
func InvalidDurationError(seconds int) *AppError {
	return NewWithStatus(ErrCodeInvalidDuration,
		fmt.Sprintf("duration %d seconds out of range, clamped to 0", seconds), http.StatusOK)
}

// Recording errors
func AlreadyRecordingError() *AppError {
	return NewWithStatus(ErrCodeAlreadyRecording, "Recording already in progress", http.StatusConflict)
}

func RecordingFailedError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeRecordingFailed, message, http.StatusUnprocessableEntity, err)
}

// Transcription errors
func TranscriptionFailedError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeTranscriptionFailed, message, http.StatusBadGateway, err)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func StorageError(err error) *AppError {
	return WrapWithStatus(ErrCodeStorage, "Storage error", http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// HasCode reports whether err is an AppError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
