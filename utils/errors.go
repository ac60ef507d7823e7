package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind is the stable machine-readable failure classification returned
// to callers. Raw driver/library errors never leave the core: everything is
// normalized to one of these kinds at the boundary.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidChallenge  ErrorKind = "invalid_challenge"
	KindSignatureMismatch ErrorKind = "signature_mismatch"
	KindAccountConflict   ErrorKind = "account_conflict"
	KindInvalidState      ErrorKind = "invalid_state"
	KindUpstreamIdentity  ErrorKind = "upstream_identity_failure"
	KindStorage           ErrorKind = "storage_failure"
)

// HTTPStatus maps a kind to its response status. Upstream identity failures
// surface like unauthenticated (fail closed); they are only distinguished
// in logs.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidChallenge, KindInvalidState:
		return fiber.StatusBadRequest
	case KindUnauthenticated, KindSignatureMismatch, KindUpstreamIdentity:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindAccountConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

type AppError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.cause }

// E builds a bare application error.
func E(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap keeps the underlying cause for logs while callers only ever see the
// kind and message.
func Wrap(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the kind from any error, defaulting to storage_failure
// for errors the core failed to classify.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}
