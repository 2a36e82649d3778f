package core

import (
	"errors"
	"fmt"
)

// Validation error kinds. A *ValidationError always unwraps to one of these,
// so callers can branch with errors.Is.
var (
	ErrOutOfRange     = errors.New("out of range")
	ErrUnknownVariant = errors.New("unknown variant")
	ErrMissingField   = errors.New("missing field")
	ErrInvalidNumber  = errors.New("invalid number")
	ErrInvalidURL     = errors.New("invalid url")
)

// ValidationError reports which input field was rejected and why.
type ValidationError struct {
	Field string
	Kind  error
	Value string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %v (%q)", e.Field, e.Kind, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func invalid(field string, kind error, value string) *ValidationError {
	return &ValidationError{Field: field, Kind: kind, Value: value}
}

// KindName returns the stable name of the validation kind carried by err,
// or an empty string when err is not a validation error.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrOutOfRange):
		return "OutOfRange"
	case errors.Is(err, ErrUnknownVariant):
		return "UnknownVariant"
	case errors.Is(err, ErrMissingField):
		return "MissingField"
	case errors.Is(err, ErrInvalidNumber):
		return "InvalidNumber"
	case errors.Is(err, ErrInvalidURL):
		return "InvalidURL"
	default:
		return ""
	}
}

// IsValidation reports whether err was produced by input validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrNotFound is returned by stores when a transaction does not exist or
// has been deleted.
var ErrNotFound = errors.New("transaction not found")
