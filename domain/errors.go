package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeInvalid  ErrorCode = "INVALID"
	ErrCodeConflict ErrorCode = "CONFLICT"
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrProfileNotFound = NewError(ErrCodeNotFound, "profile not found")
	ErrMappingNotFound = NewError(ErrCodeNotFound, "mapping not found")
	ErrMasterNotFound  = NewError(ErrCodeNotFound, "master profile not found")
	ErrInvalidEvent    = NewError(ErrCodeInvalid, "invalid identity event")
	ErrInvalidPayload  = NewError(ErrCodeInvalid, "invalid payload")
	ErrNotEnoughInputs = NewError(ErrCodeInvalid, "merge requires at least two profiles")
	ErrTenantMismatch  = NewError(ErrCodeConflict, "profiles belong to different tenants")
	ErrNoMergeCriteria = NewError(ErrCodeConflict, "profiles share no duplicate criterion")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// IsNotFound reports whether err carries the NOT_FOUND classification.
func IsNotFound(err error) bool {
	return IsDomainError(err, ErrCodeNotFound)
}
