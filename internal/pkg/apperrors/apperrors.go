// Package apperrors holds the error kinds shared by the reminder engine and
// the HTTP layer. Callers wrap a kind with fmt.Errorf("...: %w", kind) and
// match it with errors.Is.
package apperrors

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation_error")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not_found")
	ErrPrecondition      = errors.New("precondition_failed")
	ErrCredentialInvalid = errors.New("credential_invalid")
	ErrTransient         = errors.New("transient_delivery_error")
	ErrPermanent         = errors.New("permanent_delivery_error")
)

var kinds = []error{
	ErrValidation,
	ErrForbidden,
	ErrNotFound,
	ErrPrecondition,
	ErrCredentialInvalid,
	ErrTransient,
	ErrPermanent,
}

// Validation returns an ErrValidation with a formatted detail message.
func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// Forbidden returns an ErrForbidden with a formatted detail message.
func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

// Precondition returns an ErrPrecondition with a formatted detail message.
func Precondition(format string, args ...any) error {
	return wrap(ErrPrecondition, format, args...)
}

// NotFound returns an ErrNotFound with a formatted detail message.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// FromDB maps gorm.ErrRecordNotFound onto ErrNotFound and leaves other errors untouched.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("%s not found", what)
	}
	return err
}

// Code returns the machine readable code used in JSON error bodies.
func Code(err error) string {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransient.Error()
	}
	return "internal_server_error"
}

// HTTPStatus maps an error kind to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrPrecondition):
		return fiber.StatusConflict
	case errors.Is(err, ErrCredentialInvalid):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrPermanent):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// IsRetryable reports whether a later dispatch cycle may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
