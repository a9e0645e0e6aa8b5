package core

import (
	"errors"
	"fmt"
)

// ModelError is returned when a raw record breaks an assumption its
// RecordModel cannot recover from. It aborts the whole batch.
type ModelError struct {
	Entity string
	Index  int
	Field  string
	Err    error
}

func (e *ModelError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("model %s: record %d: field %s: %v", e.Entity, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("model %s: record %d: %v", e.Entity, e.Index, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// TransformError is returned when a dataset transform fails on any row.
type TransformError struct {
	Step string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Step, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// FetchError wraps a page fetch failure.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFatal reports whether err must terminate the flow instead of being
// recorded as a failed step.
func IsFatal(err error) bool {
	var me *ModelError
	var te *TransformError
	return errors.As(err, &me) || errors.As(err, &te)
}

// Fieldf builds a ModelError-ready cause for a field.
func Fieldf(field, format string, args ...any) error {
	return &fieldError{field: field, err: fmt.Errorf(format, args...)}
}

type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.field + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

// AsModelError wraps err for the given entity and position, lifting the
// field name out of a Fieldf cause when present.
func AsModelError(entity string, index int, err error) *ModelError {
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	me = &ModelError{Entity: entity, Index: index, Err: err}
	var fe *fieldError
	if errors.As(err, &fe) {
		me.Field = fe.field
		me.Err = fe.err
	}
	return me
}
