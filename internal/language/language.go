package language

import "strings"

// Language is one supported transcription language.
type Language struct {
	Code    string // ISO 639-1
	Name    string
	aliases []string
}

var languages = []Language{
	{Code: "en", Name: "English", aliases: []string{"eng", "english"}},
	{Code: "es", Name: "Spanish", aliases: []string{"spa", "spanish", "espanol"}},
	{Code: "fr", Name: "French", aliases: []string{"fra", "fre", "french", "francais"}},
	{Code: "de", Name: "German", aliases: []string{"deu", "ger", "german", "deutsch"}},
	{Code: "it", Name: "Italian", aliases: []string{"ita", "italian", "italiano"}},
	{Code: "pt", Name: "Portuguese", aliases: []string{"por", "portuguese", "portugues"}},
	{Code: "ja", Name: "Japanese", aliases: []string{"jpn", "japanese"}},
	{Code: "hi", Name: "Hindi", aliases: []string{"hin", "hindi"}},
	{Code: "nl", Name: "Dutch", aliases: []string{"nld", "dut", "dutch"}},
	{Code: "zh", Name: "Chinese", aliases: []string{"zho", "chi", "chinese"}},
}

// marketplaceLanguages maps a marketplace country code to the language most
// of its catalog is narrated in.
var marketplaceLanguages = map[string]string{
	"us": "en",
	"ca": "en",
	"uk": "en",
	"au": "en",
	"in": "en",
	"fr": "fr",
	"de": "de",
	"jp": "ja",
	"it": "it",
	"es": "es",
	"br": "pt",
}

var index = func() map[string]*Language {
	m := make(map[string]*Language, len(languages)*4)
	for i := range languages {
		l := &languages[i]
		m[l.Code] = l
		for _, alias := range l.aliases {
			m[alias] = l
		}
	}
	return m
}()

// Lookup resolves a code, three-letter code, or name.
func Lookup(value string) (Language, bool) {
	l, ok := index[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return Language{}, false
	}
	return *l, true
}

// Normalize returns the ISO 639-1 code for value, or "" when unrecognized.
func Normalize(value string) string {
	if l, ok := Lookup(value); ok {
		return l.Code
	}
	return ""
}

// DisplayName returns a human-readable name for value, falling back to the
// uppercased input.
func DisplayName(value string) string {
	if l, ok := Lookup(value); ok {
		return l.Name
	}
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return strings.ToUpper(trimmed)
	}
	return "Unknown"
}

// ForCountry returns the default language for a marketplace, or English for
// unknown marketplaces.
func ForCountry(countryCode string) string {
	if code, ok := marketplaceLanguages[strings.ToLower(strings.TrimSpace(countryCode))]; ok {
		return code
	}
	return "en"
}
