package audible

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// RegistrationStoreKey is the key under which a serialized registration is
// persisted for the audible source.
const RegistrationStoreKey = "registration:" + SourceID

// SourceID names this source in store keys and public asset ids.
const SourceID = "audible"

// Registration is the device identity produced by a completed login. The
// access token, refresh token, and expiry are replaced together on refresh;
// everything else is fixed for the life of the device.
type Registration struct {
	ADPToken                  string            `json:"adp_token"`
	DevicePrivateKey          string            `json:"device_private_key"`
	AccessToken               string            `json:"access_token"`
	RefreshToken              string            `json:"refresh_token"`
	ExpiresAt                 time.Time         `json:"expires_at"`
	CountryCode               string            `json:"country_code"`
	TLD                       string            `json:"tld"`
	WebsiteCookies            map[string]string `json:"website_cookies,omitempty"`
	StoreAuthenticationCookie string            `json:"store_authentication_cookie,omitempty"`
	DeviceInfo                map[string]any    `json:"device_info,omitempty"`
	CustomerInfo              map[string]any    `json:"customer_info,omitempty"`
}

// NewRegistration validates registration parameters supplied directly by the
// caller and fills the marketplace domain from the country code.
func NewRegistration(params Registration) (Registration, error) {
	reg := params.clone()
	reg.CountryCode = strings.ToLower(strings.TrimSpace(reg.CountryCode))
	if reg.TLD == "" && reg.CountryCode != "" {
		loc, err := LookupLocale(reg.CountryCode)
		if err != nil {
			return Registration{}, fmt.Errorf("%w: %w", ErrDeserialization, err)
		}
		reg.TLD = loc.Domain
	}
	if err := reg.validate(); err != nil {
		return Registration{}, err
	}
	return reg, nil
}

// ParseRegistration decodes a registration previously produced by Serialize.
func ParseRegistration(serialized string) (Registration, error) {
	if strings.TrimSpace(serialized) == "" {
		return Registration{}, fmt.Errorf("%w: empty payload", ErrDeserialization)
	}
	var reg Registration
	if err := json.Unmarshal([]byte(serialized), &reg); err != nil {
		return Registration{}, fmt.Errorf("%w: %w", ErrDeserialization, err)
	}
	return NewRegistration(reg)
}

// Serialize encodes the registration for opaque persistence.
func (r Registration) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode registration: %w", err)
	}
	return string(data), nil
}

// Expired reports whether the access token expires within leeway of now.
func (r Registration) Expired(now time.Time, leeway time.Duration) bool {
	return !r.ExpiresAt.After(now.Add(leeway))
}

// CustomerName returns the account holder name when the registration carries it.
func (r Registration) CustomerName() string {
	if name, ok := r.CustomerInfo["name"].(string); ok {
		return name
	}
	return ""
}

// DeviceName returns the device label Amazon assigned at registration.
func (r Registration) DeviceName() string {
	if name, ok := r.DeviceInfo["device_name"].(string); ok {
		return name
	}
	return ""
}

func (r Registration) validate() error {
	var missing []string
	if r.ADPToken == "" {
		missing = append(missing, "adp_token")
	}
	if r.DevicePrivateKey == "" {
		missing = append(missing, "device_private_key")
	}
	if r.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if r.TLD == "" {
		missing = append(missing, "tld")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrDeserialization, strings.Join(missing, ", "))
	}
	if _, err := ParsePrivateKey(r.DevicePrivateKey); err != nil {
		return fmt.Errorf("%w: %w", ErrDeserialization, err)
	}
	return nil
}

func (r Registration) clone() Registration {
	out := r
	out.WebsiteCookies = maps.Clone(r.WebsiteCookies)
	out.DeviceInfo = maps.Clone(r.DeviceInfo)
	out.CustomerInfo = maps.Clone(r.CustomerInfo)
	return out
}
