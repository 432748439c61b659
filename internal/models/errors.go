package models

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups of entities that do not exist. Store
// implementations wrap it so callers can map it to a 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden marks mutations attempted without the required capability.
var ErrForbidden = errors.New("forbidden")

// ValidationError reports input rejected before any store call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for the given field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConsistencyError reports a paired cross-reference update where one side
// failed. Compensated tells whether the already-applied side was rolled back.
type ConsistencyError struct {
	Op          string
	Compensated bool
	Err         error
}

func (e *ConsistencyError) Error() string {
	state := "compensated"
	if !e.Compensated {
		state = "NOT compensated"
	}
	return fmt.Sprintf("%s: cross-reference update failed (%s): %v", e.Op, state, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// NotifyError aggregates notification failures after a mutation that itself
// succeeded. It is surfaced as a warning and never rolls the mutation back.
type NotifyError struct {
	Failed int
	Errs   []error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("%d notification(s) failed: %v", e.Failed, errors.Join(e.Errs...))
}

func (e *NotifyError) Unwrap() error { return errors.Join(e.Errs...) }
