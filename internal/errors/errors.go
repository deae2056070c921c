package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the storefront client.
var (
	// Authentication errors
	ErrAuthentication = errors.New("authentication failed")

	// Input errors
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// Infrastructure errors
	ErrTransport = errors.New("transport failure")
	ErrStorage   = errors.New("storage failure")

	// Workflow guard errors
	ErrInFlight      = errors.New("operation already in flight")
	ErrNotCancelable = errors.New("no cancelable order")
)

// DisplayError carries a human-readable message for the caller to show while
// keeping the classified cause reachable through errors.Is.
type DisplayError struct {
	Message string
	Err     error
}

func (e *DisplayError) Error() string {
	return e.Message
}

func (e *DisplayError) Unwrap() error {
	return e.Err
}

// Display wraps err with a user-facing message. A nil err is classified as
// ErrValidation since it is only used for client-side checks.
func Display(err error, message string) error {
	if err == nil {
		err = ErrValidation
	}
	return &DisplayError{Message: message, Err: err}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
