package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned instances compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && t != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registration and token ledger domain errors.
var (
	ErrInstanceNotFound      = New("INSTANCE_NOT_FOUND", http.StatusNotFound, "no matching office hour instance")
	ErrDuplicateRegistration = New("DUPLICATE_REGISTRATION", http.StatusConflict, "an active registration already exists for this instance")
	ErrArchivedBlocked       = New("COURSE_ARCHIVED", http.StatusConflict, "course is archived")
	ErrClosedBeforeWindow    = New("REG_WINDOW_NOT_OPEN", http.StatusUnprocessableEntity, "registration window has not opened yet")
	ErrClosedAfterWindow     = New("REG_WINDOW_CLOSED", http.StatusUnprocessableEntity, "registration window has closed")
	ErrTokenLimitReached     = New("TOKEN_LIMIT_REACHED", http.StatusConflict, "token consumption limit reached")
	ErrInvalidOverride       = New("INVALID_OVERRIDE", http.StatusBadRequest, "override must exceed the course token limit")
	ErrNoOverrideSet         = New("NO_OVERRIDE_SET", http.StatusConflict, "no override is set for this token")
	ErrNoMatchingConsumption = New("NO_MATCHING_CONSUMPTION", http.StatusConflict, "no consumption matches the given date")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
