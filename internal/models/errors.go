package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"procodus.dev/weather-db/internal/access"
	"procodus.dev/weather-db/internal/docstore"
)

// ErrNotFound is returned when no document matches the lookup key.
var ErrNotFound = docstore.ErrNotFound

// ConflictError is returned when an insert collides with an existing business key.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ValidationError is returned when a document is missing required fields.
type ValidationError struct {
	Entity string
	Err    error
}

func (e *ValidationError) Error() string {
	var fields validator.ValidationErrors
	if errors.As(e.Err, &fields) && len(fields) > 0 {
		f := fields[0]
		return fmt.Sprintf("invalid %s: field %s failed %q", e.Entity, f.Field(), f.Tag())
	}
	return fmt.Sprintf("invalid %s: %v", e.Entity, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Outcome is the kind of result a model call produced.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeNotFound
	OutcomeDenied
	OutcomeConflict
	OutcomeInvalid
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDenied:
		return "denied"
	case OutcomeConflict:
		return "conflict"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "failed"
	}
}

// Classify maps the error returned by a model call to its Outcome.
// A nil error means the call produced a document.
func Classify(err error) Outcome {
	var (
		conflict *ConflictError
		invalid  *ValidationError
	)
	switch {
	case err == nil:
		return OutcomeFound
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case access.IsDenied(err):
		return OutcomeDenied
	case errors.As(err, &conflict):
		return OutcomeConflict
	case errors.As(err, &invalid):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// Reason returns the human readable message carried by denials and conflicts.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Reason
	}
	return err.Error()
}
