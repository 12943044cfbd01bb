package types

// CharsSettings selects the character conversion applied at the end of the value transform pipeline.
type CharsSettings string

const (
	CharsSettingsNotSet        CharsSettings = "not_set"
	CharsSettingsTransliterate CharsSettings = "transliterate"
	CharsSettingsURLEncode     CharsSettings = "urlencode"
)

// IsValid checks if the chars settings value is valid
func (c CharsSettings) IsValid() bool {
	switch c {
	case CharsSettingsNotSet, CharsSettingsTransliterate, CharsSettingsURLEncode:
		return true
	default:
		return false
	}
}

// String returns the string representation of the chars settings
func (c CharsSettings) String() string {
	return string(c)
}
