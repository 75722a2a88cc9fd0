package audible

import (
	"fmt"
	"sort"
	"strings"
)

// Locale describes one Audible marketplace.
type Locale struct {
	CountryCode   string
	Domain        string
	MarketplaceID string
}

var locales = map[string]Locale{
	"us": {CountryCode: "us", Domain: "com", MarketplaceID: "AF2M0KC94RCEA"},
	"ca": {CountryCode: "ca", Domain: "ca", MarketplaceID: "A2CQZ5RBY40XE"},
	"uk": {CountryCode: "uk", Domain: "co.uk", MarketplaceID: "A2I9A3Q2GNFNGQ"},
	"au": {CountryCode: "au", Domain: "com.au", MarketplaceID: "AN7EY7DTAW63G"},
	"fr": {CountryCode: "fr", Domain: "fr", MarketplaceID: "A2728XDNODOQ8T"},
	"de": {CountryCode: "de", Domain: "de", MarketplaceID: "AN7V1F1VY261K"},
	"jp": {CountryCode: "jp", Domain: "co.jp", MarketplaceID: "A1QAP3MOU4173J"},
	"it": {CountryCode: "it", Domain: "it", MarketplaceID: "A2N7FU2W2BU2ZC"},
	"in": {CountryCode: "in", Domain: "co.in", MarketplaceID: "AJO3FBRUE6J4S"},
	"es": {CountryCode: "es", Domain: "es", MarketplaceID: "ALMIKO4SZCSAR"},
	"br": {CountryCode: "br", Domain: "com.br", MarketplaceID: "A10J1VAYUDTYRN"},
}

// LookupLocale returns the marketplace for a two-letter country code.
func LookupLocale(countryCode string) (Locale, error) {
	loc, ok := locales[strings.ToLower(strings.TrimSpace(countryCode))]
	if !ok {
		return Locale{}, fmt.Errorf("%w: %q", ErrUnknownLocale, countryCode)
	}
	return loc, nil
}

// CountryCodes lists the supported marketplaces in sorted order.
func CountryCodes() []string {
	codes := make([]string, 0, len(locales))
	for code := range locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// AmazonURL is the retail host used for sign-in.
func (l Locale) AmazonURL() string { return "https://www.amazon." + l.Domain }

// AuthURL is the host serving device registration and token refresh.
func (l Locale) AuthURL() string { return "https://api.amazon." + l.Domain }

// APIURL is the Audible catalog API host.
func (l Locale) APIURL() string { return "https://api.audible." + l.Domain }
