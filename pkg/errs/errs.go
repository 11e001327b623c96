package errs

import (
	"errors"
	"fmt"
)

// Sentinel failure classes. Services wrap these with fmt.Errorf("...: %w", ...)
// so handlers can map any error to a response code with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrAmountMismatch = errors.New("amount mismatch")
	ErrStorageFailure = errors.New("storage failure")
	ErrGatewayFailure = errors.New("gateway failure")
)

// Validationf builds a field-level validation error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidStatef reports an operation attempted against the wrong status.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// NotFoundf reports a missing entity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
