package language

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"English", "en"},
		{"fre", "fr"},
		{"fra", "fr"},
		{"deutsch", "de"},
		{" jpn ", "ja"},
		{"portuguese", "pt"},
		{"xx", ""},
		{"klingon", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"de", "German"},
		{"ita", "Italian"},
		{"xx", "XX"},
		{" ", "Unknown"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestForCountry(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"us", "en"},
		{"UK", "en"},
		{"de", "de"},
		{"jp", "ja"},
		{"br", "pt"},
		{"zz", "en"},
	}
	for _, tt := range tests {
		if got := ForCountry(tt.country); got != tt.want {
			t.Errorf("ForCountry(%q) = %q, want %q", tt.country, got, tt.want)
		}
	}
}

func TestEveryMarketplaceLanguageIsKnown(t *testing.T) {
	for country, code := range marketplaceLanguages {
		if _, ok := Lookup(code); !ok {
			t.Errorf("marketplace %s maps to unknown language %q", country, code)
		}
	}
}
