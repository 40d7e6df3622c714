package billing

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers branch with errors.Is: configuration errors need an
// operator, not a retry; provider errors are retryable; validation errors
// describe payloads that can never become valid and are logged and skipped.
var (
	ErrNotConfigured = errors.New("billing is not configured")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrProvider      = errors.New("billing provider error")
	ErrValidation    = errors.New("invalid billing payload")
)

// configErrorf wraps ErrNotConfigured with detail about the missing piece.
func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, fmt.Sprintf(format, args...))
}

// providerErrorf wraps ErrProvider so transport failures stay retryable.
func providerErrorf(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProvider, op, err)
}

// validationErrorf wraps ErrValidation for malformed or unattributable events.
func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
