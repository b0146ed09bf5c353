package shared

import (
	"errors"
	"fmt"
)

// ErrAuthenticationRequired is returned by every ledger operation invoked without
// an authenticated session. It is a precondition failure and is never retried.
var ErrAuthenticationRequired = errors.New("authentication required")

// ValidationError reports input rejected before any remote call
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Is matches any ValidationError when the target carries no field
func (e ValidationError) Is(target error) bool {
	t, ok := target.(ValidationError)
	if !ok {
		return false
	}
	if t.Field == "" {
		return true
	}
	return e.Field == t.Field
}

// NewValidationError builds a ValidationError for a single field
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// TransientError marks a backend failure that may succeed when retried, such as a
// session that is not yet visible to the database or a dropped connection.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err, or anything it wraps, is a TransientError
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
