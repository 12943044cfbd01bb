package types

import "github.com/google/uuid"

// FieldID is the stable identity of a field. Submitted form values are keyed by it.
type FieldID string

// FormID identifies a form
type FormID string

// DependencyID identifies a select dependency
type DependencyID string

// UserID identifies the owner of fields, forms and submissions
type UserID string

// Hashcode is the content derived key of a raw submission
type Hashcode string

func NewFieldID() FieldID {
	return FieldID(uuid.Must(uuid.NewV7()).String())
}

func NewFormID() FormID {
	return FormID(uuid.Must(uuid.NewV7()).String())
}

func NewDependencyID() DependencyID {
	return DependencyID(uuid.Must(uuid.NewV7()).String())
}

func (id FieldID) String() string      { return string(id) }
func (id FormID) String() string       { return string(id) }
func (id DependencyID) String() string { return string(id) }
func (id UserID) String() string       { return string(id) }
func (h Hashcode) String() string      { return string(h) }
