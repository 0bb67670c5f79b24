package models

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the event service wraps exactly one
// of these so the HTTP layer can map it to a status without string matching.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrCredentialMismatch = errors.New("credential mismatch")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var (
	ErrEventNotFound      = fmt.Errorf("event %w", ErrNotFound)
	ErrSubEventNotFound   = fmt.Errorf("sub-event %w", ErrNotFound)
	ErrRegistrantNotFound = fmt.Errorf("registrant %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)

	ErrDuplicateRegistrant = fmt.Errorf("%w: user is already registered for this event", ErrConflict)
	ErrAlreadyCheckedIn    = fmt.Errorf("%w: user is already checked in to this sub-event", ErrConflict)
	ErrEventModified       = fmt.Errorf("%w: event was modified concurrently, reload and retry", ErrConflict)
	ErrDuplicateSecret     = fmt.Errorf("%w: event secret name already in use", ErrConflict)

	ErrInvalidWindow           = fmt.Errorf("%w: start time must be before end time", ErrValidation)
	ErrInvalidBuffer           = fmt.Errorf("%w: buffered window must enclose the event window", ErrValidation)
	ErrRegistrationNotRequired = fmt.Errorf("%w: event does not require registration", ErrValidation)
	ErrSubEventOutsideEvent    = fmt.Errorf("%w: sub-event must fall within the event's buffered window", ErrValidation)

	ErrProxyCheckIn  = fmt.Errorf("%w: users may only check themselves in", ErrForbidden)
	ErrPrivileged    = fmt.Errorf("%w: admin privileges required", ErrForbidden)
	ErrOutsideWindow = fmt.Errorf("%w: check-in is not open at this time", ErrForbidden)
)

// FieldError is implemented by validation errors that can name the offending field.
type FieldError interface {
	error
	FieldName() string
}

// UnknownFieldError reports a key that the schema does not declare.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

func (e *UnknownFieldError) FieldName() string { return e.Field }
func (e *UnknownFieldError) Unwrap() error     { return ErrValidation }

// MissingFieldError reports a schema key absent from a complete write.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

func (e *MissingFieldError) FieldName() string { return e.Field }
func (e *MissingFieldError) Unwrap() error     { return ErrValidation }

// SchemaTypeMismatch reports a value whose runtime type differs from the declared one.
type SchemaTypeMismatch struct {
	Field    string
	Expected FieldType
	Got      string
}

func (e *SchemaTypeMismatch) Error() string {
	return fmt.Sprintf("field %q must be of type %s, got %s", e.Field, e.Expected, e.Got)
}

func (e *SchemaTypeMismatch) FieldName() string { return e.Field }
func (e *SchemaTypeMismatch) Unwrap() error     { return ErrValidation }

// InvalidInputError wraps a struct-level validation failure on a request field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) FieldName() string { return e.Field }
func (e *InvalidInputError) Unwrap() error     { return ErrValidation }

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
