package common

import "errors"

// ValidationError carries a client-facing message about malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError returns a *ValidationError with msg.
func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
