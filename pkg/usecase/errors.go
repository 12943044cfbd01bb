package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrFormNotFound       = errors.New("form not found")
	ErrFieldNotFound      = errors.New("field not found")
	ErrDependencyNotFound = errors.New("select dependency not found")
	ErrSubmissionNotFound = errors.New("submission not found")

	// Access control errors
	ErrAccessDenied = errors.New("access denied")

	// Concurrent modification of the same definition
	ErrVersionConflict = errors.New("definition was modified concurrently")

	// Internal failure while computing a submission. Callers show a retry
	// message instead of a field error.
	ErrEvaluationFailed = errors.New("evaluation failed")
)

// Context keys for error values
const (
	UserIDKey       = "user_id"
	FormIDKey       = "form_id"
	FieldIDKey      = "field_id"
	DependencyIDKey = "dependency_id"
	FullTitleKey    = "full_title"
	HashcodeKey     = "hashcode"
	ValuesKey       = "values"
	UsedInKey       = "used_in"
)
