package types

import "fmt"

// FieldKind is the closed set of field variants. The value doubles as the
// type code prefix of a field full title.
type FieldKind string

const (
	FieldKindInputText   FieldKind = "it"
	FieldKindInputInt    FieldKind = "ii"
	FieldKindCheckbox    FieldKind = "ch"
	FieldKindRadiobutton FieldKind = "rb"
	FieldKindSelect      FieldKind = "se"
	FieldKindCombined    FieldKind = "co"
	FieldKindLookupTable FieldKind = "lt"
)

// AllFieldKinds returns all valid field kinds
func AllFieldKinds() []FieldKind {
	return []FieldKind{
		FieldKindInputText,
		FieldKindInputInt,
		FieldKindCheckbox,
		FieldKindRadiobutton,
		FieldKindSelect,
		FieldKindCombined,
		FieldKindLookupTable,
	}
}

// IsValid checks if the field kind is valid
func (k FieldKind) IsValid() bool {
	switch k {
	case FieldKindInputText,
		FieldKindInputInt,
		FieldKindCheckbox,
		FieldKindRadiobutton,
		FieldKindSelect,
		FieldKindCombined,
		FieldKindLookupTable:
		return true
	default:
		return false
	}
}

// IsLeaf reports whether the kind is a direct user input that can be placed in a form UI.
func (k FieldKind) IsLeaf() bool {
	switch k {
	case FieldKindInputText,
		FieldKindInputInt,
		FieldKindCheckbox,
		FieldKindRadiobutton,
		FieldKindSelect:
		return true
	default:
		return false
	}
}

// IsResult reports whether the kind is computed from other fields.
func (k FieldKind) IsResult() bool {
	return k == FieldKindCombined || k == FieldKindLookupTable
}

// HasChoices reports whether the kind carries a label to value choice mapping.
func (k FieldKind) HasChoices() bool {
	return k == FieldKindRadiobutton || k == FieldKindSelect
}

// HasValueSettings reports whether values of the kind go through the value transform pipeline.
func (k FieldKind) HasValueSettings() bool {
	switch k {
	case FieldKindInputText,
		FieldKindRadiobutton,
		FieldKindSelect,
		FieldKindCombined,
		FieldKindLookupTable:
		return true
	default:
		return false
	}
}

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	return string(k)
}

// ParseFieldKind parses a type code into a FieldKind
func ParseFieldKind(s string) (FieldKind, error) {
	kind := FieldKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid field kind: %s", s)
	}
	return kind, nil
}
