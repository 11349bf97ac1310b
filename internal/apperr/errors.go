// Package apperr — типизированные ошибки сервисного слоя со стабильными кодами.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Code — стабильный машиночитаемый класс ошибки.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeIntegrity     Code = "INTEGRITY_ERROR"
	CodeLockout       Code = "ACCOUNT_LOCKED"
	CodeRateLimit     Code = "RATE_LIMITED"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeIO            Code = "IO_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error — ошибка с кодом и человекочитаемым сообщением.
// UnlockAt заполняется для CodeLockout, RetryAfter — для CodeRateLimit.
type Error struct {
	Code       Code
	Message    string
	Err        error
	UnlockAt   *time.Time
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по коду, чтобы errors.Is(err, apperr.ErrNotFound) работал для любых сообщений.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// Сентинелы для errors.Is.
var (
	ErrValidation    = &Error{Code: CodeValidation}
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrConflict      = &Error{Code: CodeConflict}
	ErrIntegrity     = &Error{Code: CodeIntegrity}
	ErrLockout       = &Error{Code: CodeLockout}
	ErrRateLimit     = &Error{Code: CodeRateLimit}
	ErrConfiguration = &Error{Code: CodeConfiguration}
	ErrIO            = &Error{Code: CodeIO}
	ErrInternal      = &Error{Code: CodeInternal}
)

// New создаёт ошибку с кодом и сообщением.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает err в ошибку с кодом.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation, NotFound, Conflict, Integrity — короткие конструкторы для частых случаев.
func Validation(format string, args ...any) *Error { return New(CodeValidation, format, args...) }

func NotFound(format string, args ...any) *Error { return New(CodeNotFound, format, args...) }

func Conflict(format string, args ...any) *Error { return New(CodeConflict, format, args...) }

func Integrity(format string, args ...any) *Error { return New(CodeIntegrity, format, args...) }

func Configuration(format string, args ...any) *Error {
	return New(CodeConfiguration, format, args...)
}

func Internal(err error, format string, args ...any) *Error {
	return Wrap(CodeInternal, err, format, args...)
}

// Locked — учётная запись временно заблокирована до until.
func Locked(identity string, until time.Time) *Error {
	u := until
	return &Error{
		Code:     CodeLockout,
		Message:  fmt.Sprintf("account %q is locked until %s", identity, until.UTC().Format(time.RFC3339)),
		UnlockAt: &u,
	}
}

// RateLimited — превышен лимит запросов, повторить через retryAfter.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeRateLimit,
		Message:    fmt.Sprintf("too many attempts, retry after %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// CodeOf возвращает код ошибки; неизвестные ошибки считаются внутренними.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As извлекает *Error из цепочки.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
