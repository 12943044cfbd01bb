package model

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultHashSeparator separates a value from the appended submission hashcode
const DefaultHashSeparator = "~"

// MaxHashSeparatorLength is counted in characters
const MaxHashSeparatorLength = 2

// ValueSettings controls the transform pipeline applied to a computed value
type ValueSettings struct {
	CleanValue       bool                `json:"clean_value"`
	DisableLowercase bool                `json:"disable_lowercase"`
	CharsSettings    types.CharsSettings `json:"chars_settings"`
	AddHash          bool                `json:"add_hash"`
	HashSeparator    string              `json:"hash_separator"`
}

// DefaultValueSettings returns settings used when a field is created without explicit ones
func DefaultValueSettings() *ValueSettings {
	return &ValueSettings{
		CleanValue:    true,
		CharsSettings: types.CharsSettingsTransliterate,
		HashSeparator: DefaultHashSeparator,
	}
}

func (s *ValueSettings) validate(errs *ValidationErrors) {
	if !s.CharsSettings.IsValid() {
		errs.Add("chars_settings", ErrInvalidSettings, "unknown chars settings: "+s.CharsSettings.String())
	}
	if utf8.RuneCountInString(s.HashSeparator) > MaxHashSeparatorLength {
		errs.Add("hash_separator", ErrInvalidSettings, "hash separator must be at most 2 characters")
	}
}

// urlSpecialChars are removed when CleanValue is set
const urlSpecialChars = "=&?#'\"\n\r"

var (
	lowerCaser    = cases.Lower(language.Und)
	urlCharsStrip = runes.Remove(runes.Predicate(func(r rune) bool {
		return strings.ContainsRune(urlSpecialChars, r)
	}))
)

// TransformValue runs the value transform pipeline. The order of the steps is
// fixed: trim, lowercase, strip URL special characters, chars conversion,
// hash suffix. A nil settings only trims. An empty input stays empty and never
// receives a hash suffix.
func TransformValue(value string, settings *ValueSettings, hashcode types.Hashcode) string {
	if value == "" {
		return ""
	}
	value = strings.TrimSpace(value)
	if settings == nil {
		return value
	}

	if !settings.DisableLowercase {
		value = lowerCaser.String(value)
	}

	if settings.CleanValue {
		if cleaned, _, err := transform.String(urlCharsStrip, value); err == nil {
			value = cleaned
		}
	}

	switch settings.CharsSettings {
	case types.CharsSettingsTransliterate:
		value = Transliterate(strings.ReplaceAll(value, " ", "_"))
	case types.CharsSettingsURLEncode:
		value = url.QueryEscape(value)
	}

	if settings.AddHash && hashcode != "" {
		value += settings.HashSeparator + string(hashcode)
	}
	return value
}
