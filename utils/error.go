package utils

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// Sentinel errors for the signature subsystem. Handlers map these onto HTTP
// status codes; callers distinguish cases with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrExpired      = errors.New("expired")
	// ErrInternal marks retryable failures (render timeout, storage outage).
	ErrInternal = errors.New("internal")
)

// StatusError pairs a taxonomy sentinel with a caller-facing message.
// "already signed" and "link expired" need different client messaging, so the
// message travels with the error instead of being reconstructed at the edge.
type StatusError struct {
	Kind    error
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}

func NotFoundError(format string, args ...interface{}) error {
	return &StatusError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenError(format string, args ...interface{}) error {
	return &StatusError{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...interface{}) error {
	return &StatusError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidInputError(format string, args ...interface{}) error {
	return &StatusError{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func ExpiredError(format string, args ...interface{}) error {
	return &StatusError{Kind: ErrExpired, Message: fmt.Sprintf(format, args...)}
}

func InternalError(format string, args ...interface{}) error {
	return &StatusError{Kind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// ErrorMessage returns the caller-facing message when err carries one,
// otherwise err.Error().
func ErrorMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsDuplicateKeyErr reports MySQL error 1062 (unique constraint violation).
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
