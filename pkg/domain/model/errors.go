package model

import "github.com/m-mizutani/goerr/v2"

// Validation errors raised before any field, form or dependency save commits
var (
	ErrValidation          = goerr.New("validation failed")
	ErrInvalidTitle        = goerr.New("invalid title")
	ErrDuplicateTitle      = goerr.New("title already used by the owner")
	ErrInvalidKind         = goerr.New("invalid field kind")
	ErrKindChange          = goerr.New("field kind cannot be changed")
	ErrOwnerChange         = goerr.New("owner cannot be changed after creation")
	ErrInvalidSettings     = goerr.New("invalid field settings")
	ErrMalformedBuildRule  = goerr.New("malformed build rule")
	ErrCycleDetected       = goerr.New("reference cycle detected")
	ErrMissingUIField      = goerr.New("required field is missing in form UI")
	ErrRowTooWide          = goerr.New("form UI row is too wide")
	ErrInvalidUI           = goerr.New("invalid form UI")
	ErrDuplicateDependency = goerr.New("select field depends on more than one parent")
	ErrInvalidDependency   = goerr.New("invalid select dependency")
)

// Errors raised outside of save validation
var (
	ErrReferenceNotFound = goerr.New("reference not found")
	ErrDeletionBlocked   = goerr.New("field is still referenced")
	ErrURLInvalid        = goerr.New("URL is invalid")
	ErrRecursionLimit    = goerr.New("evaluation recursion limit exceeded")
)

// Context keys for error values
const (
	FieldIDKey      = "field_id"
	FullTitleKey    = "full_title"
	FormIDKey       = "form_id"
	DependencyIDKey = "dependency_id"
	OwnerKey        = "owner"
	HashcodeKey     = "hashcode"
	ReferencesKey   = "references"
)
