// Package errors provides error code definitions for the intelsync core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code surfaced to callers and event
// subscribers.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorageRead  ErrorCode = "STORAGE_READ"
	ErrStorageWrite ErrorCode = "STORAGE_WRITE"

	// Sync errors
	ErrSyncNotConfigured ErrorCode = "SYNC_NOT_CONFIGURED"
	ErrSyncInProgress    ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncSubmission    ErrorCode = "SYNC_SUBMISSION_FAILED"
	ErrSyncConflict      ErrorCode = "SYNC_CONFLICT"

	// Record errors
	ErrRecordNotFound   ErrorCode = "RECORD_NOT_FOUND"
	ErrRecordSyncing    ErrorCode = "RECORD_SYNCING"
	ErrConflictNotFound ErrorCode = "CONFLICT_NOT_FOUND"
	ErrBadTransition    ErrorCode = "BAD_STATUS_TRANSITION"
)

// Sentinel errors for the failure modes callers branch on. Each carries the
// matching code so both errors.Is and code checks work.
var (
	// ErrNotConfigured is returned by runSync when no remote submitter has
	// been configured. Fatal for that call only.
	ErrNotConfigured = New(ErrSyncNotConfigured, "remote submitter not configured")

	// ErrInProgress is returned when a second concurrent sync run is
	// attempted. Callers are expected to retry later, not queue.
	ErrInProgress = New(ErrSyncInProgress, "sync already in progress")

	// ErrNoConflict is returned when a conflict resolution is requested for
	// a record that is not in conflict status.
	ErrNoConflict = New(ErrConflictNotFound, "record has no pending conflict")
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is makes AppError values with the same code match under errors.Is, so the
// sentinel values above compare by code rather than pointer identity.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if stderrors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code carried by err, or ErrInternal when err has
// no AppError in its chain.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
