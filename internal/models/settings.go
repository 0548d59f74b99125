package models

import "strings"

// Language selects the language of fetched content.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

// ParseLanguage normalizes s to a supported Language. Anything that is not
// English falls back to Chinese, the app default.
func ParseLanguage(s string) Language {
	if strings.EqualFold(strings.TrimSpace(s), string(LanguageEnglish)) {
		return LanguageEnglish
	}
	return LanguageChinese
}

// APICode returns the lang parameter HKO expects for this language.
func (l Language) APICode() string {
	if l == LanguageEnglish {
		return "en"
	}
	return "tc"
}

// LocationMode is how the weather location is chosen.
type LocationMode string

const (
	LocationDefault LocationMode = "default"
	LocationGPS     LocationMode = "gps"
	LocationFixed   LocationMode = "fixed"
)

// LocationPreference is the stored location setting. Lat/Lng are only
// meaningful in fixed mode.
type LocationPreference struct {
	Mode LocationMode `json:"mode"`
	Lat  float64      `json:"lat,omitempty"`
	Lng  float64      `json:"lng,omitempty"`
}

// Location is a resolved coordinate used for station selection. Fallback is
// set when the default location was substituted.
type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Fallback bool    `json:"fallback"`
}

// DefaultLocation is the Hong Kong Observatory headquarters.
var DefaultLocation = Location{Lat: 22.3019, Lng: 114.1742}
