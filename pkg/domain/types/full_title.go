package types

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ReferenceMarker prefixes a full title inside build rules, form UI cells and lookup tables.
const ReferenceMarker = "$"

// MaxTitleLength is the longest allowed user chosen title
const MaxTitleLength = 100

var titlePattern = regexp.MustCompile(`^[0-9a-zA-Z_]+$`)

// FullTitle is the globally unique name of a field, form or select dependency.
// Fields use "{kind}-{title}-{owner}", forms and dependencies use "{title}-{owner}".
type FullTitle string

// NewFieldFullTitle derives the full title of a field
func NewFieldFullTitle(kind FieldKind, title string, owner UserID) FullTitle {
	return FullTitle(string(kind) + "-" + title + "-" + string(owner))
}

// NewFullTitle derives the full title of a form or select dependency
func NewFullTitle(title string, owner UserID) FullTitle {
	return FullTitle(title + "-" + string(owner))
}

// Kind returns the field kind encoded in the type code prefix. The second
// value is false when the prefix is not a known type code.
func (ft FullTitle) Kind() (FieldKind, bool) {
	code, _, found := strings.Cut(string(ft), "-")
	if !found {
		return "", false
	}
	kind := FieldKind(code)
	return kind, kind.IsValid()
}

// Ref returns the reference form "$full_title"
func (ft FullTitle) Ref() string {
	return ReferenceMarker + string(ft)
}

// String returns the string representation of the full title
func (ft FullTitle) String() string {
	return string(ft)
}

// IsReference reports whether a build rule element or UI cell refers to a field.
func IsReference(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), ReferenceMarker)
}

// ParseReference extracts the full title from "$full_title". Anything not
// starting with the marker is a literal and yields false.
func ParseReference(s string) (FullTitle, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, ReferenceMarker) {
		return "", false
	}
	return FullTitle(strings.TrimSpace(strings.TrimPrefix(s, ReferenceMarker))), true
}

// NormalizeTitle lowercases and trims a user chosen title
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// ValidateTitle checks the title alphabet and length
func ValidateTitle(title string) error {
	if title == "" {
		return goerr.New("title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return goerr.New("title is too long", goerr.V("title", title), goerr.V("max", MaxTitleLength))
	}
	if !titlePattern.MatchString(title) {
		return goerr.New("title must contain only latin letters, digits and underscores", goerr.V("title", title))
	}
	return nil
}
