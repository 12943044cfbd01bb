package model

import (
	"errors"
	"strings"
)

// ValidationError is a single save time problem scoped to an input field name
// such as "build_rule" or "ui". An empty Field means the problem concerns the
// whole entity.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors collects every problem found in one validation pass
type ValidationErrors []ValidationError

// Add records a problem. kind is the sentinel used for errors.Is classification.
func (v *ValidationErrors) Add(field string, kind error, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message, Err: kind})
}

// Merge appends every problem of other
func (v *ValidationErrors) Merge(other ValidationErrors) {
	*v = append(*v, other...)
}

// Err returns nil when nothing was collected
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ByField returns the problems reported for one input field
func (v ValidationErrors) ByField(field string) ValidationErrors {
	var out ValidationErrors
	for _, e := range v {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrValidation and every collected sentinel to errors.Is
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v)+1)
	errs = append(errs, ErrValidation)
	for _, e := range v {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	return errs
}

// AsValidationErrors extracts collected validation problems from err
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
