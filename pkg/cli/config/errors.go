package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for definition file validation
var (
	ErrConfigNotFound    = goerr.New("definition file not found")
	ErrInvalidConfig     = goerr.New("invalid definition file")
	ErrUnsupportedFormat = goerr.New("unsupported definition file format")
	ErrInvalidFieldType  = goerr.New("invalid field kind")
	ErrDuplicateTitle    = goerr.New("duplicate title in definition file")
	ErrUnknownDependency = goerr.New("unknown select dependency")
	ErrMissingName       = goerr.New("title is required")
	ErrDefinitionCycle   = goerr.New("fields in definition file reference each other in a cycle")
)

// Context keys for error values
const (
	ConfigPathKey      = "config_path"
	FieldTypeKey       = "field_type"
	TitleKey           = "title"
	FieldIndexKey      = "field_index"
	DependencyIndexKey = "dependency_index"
	FormIndexKey       = "form_index"
)
