package audible

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	deviceType       = "A2CZJZGLK2JJVM"
	clientIDSuffix   = "#" + deviceType
	appName          = "Audible"
	appVersion       = "3.56.2"
	softwareVersion  = "35602678"
	osVersion        = "15.0.0"
	deviceModel      = "iPhone"
	deviceNameFormat = "%FIRST_NAME%%FIRST_NAME_POSSESSIVE_STRING%%DUPE_STRATEGY_1ST%Audible for iPhone"
)

// LoginParams are the values generated when a login starts and needed again
// to register the device once the user authorizes it.
type LoginParams struct {
	CountryCode       string `json:"country_code"`
	TLD               string `json:"tld"`
	DeviceSerial      string `json:"device_serial"`
	CodeVerifier      string `json:"code_verifier"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
}

// ClientID derives the OAuth client id from the device serial.
func ClientID(deviceSerial string) string {
	return hex.EncodeToString([]byte(deviceSerial + clientIDSuffix))
}

type registerRequest struct {
	RequestedTokenType  []string         `json:"requested_token_type"`
	Cookies             registerCookies  `json:"cookies"`
	RegistrationData    registrationData `json:"registration_data"`
	AuthData            registrationAuth `json:"auth_data"`
	RequestedExtensions []string         `json:"requested_extensions"`
}

type registerCookies struct {
	WebsiteCookies []string `json:"website_cookies"`
	Domain         string   `json:"domain"`
}

type registrationData struct {
	Domain          string `json:"domain"`
	AppVersion      string `json:"app_version"`
	DeviceSerial    string `json:"device_serial"`
	DeviceType      string `json:"device_type"`
	DeviceName      string `json:"device_name"`
	OSVersion       string `json:"os_version"`
	SoftwareVersion string `json:"software_version"`
	DeviceModel     string `json:"device_model"`
	AppName         string `json:"app_name"`
}

type registrationAuth struct {
	ClientID          string `json:"client_id"`
	AuthorizationCode string `json:"authorization_code"`
	CodeVerifier      string `json:"code_verifier"`
	CodeAlgorithm     string `json:"code_algorithm"`
	ClientDomain      string `json:"client_domain"`
}

type registerResponse struct {
	Response struct {
		Success *struct {
			Tokens struct {
				MacDMS struct {
					ADPToken         string `json:"adp_token"`
					DevicePrivateKey string `json:"device_private_key"`
				} `json:"mac_dms"`
				StoreAuthenticationCookie struct {
					Cookie string `json:"cookie"`
				} `json:"store_authentication_cookie"`
				Bearer struct {
					AccessToken  string  `json:"access_token"`
					RefreshToken string  `json:"refresh_token"`
					ExpiresIn    seconds `json:"expires_in"`
				} `json:"bearer"`
				WebsiteCookies []struct {
					Name  string `json:"Name"`
					Value string `json:"Value"`
				} `json:"website_cookies"`
			} `json:"tokens"`
			Extensions struct {
				DeviceInfo   map[string]any `json:"device_info"`
				CustomerInfo map[string]any `json:"customer_info"`
			} `json:"extensions"`
		} `json:"success"`
	} `json:"response"`
}

// seconds accepts a JSON number or a numeric string.
type seconds int64

func (s *seconds) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse seconds %q: %w", raw, err)
	}
	*s = seconds(value)
	return nil
}

// Register exchanges a completed login for a device registration. headers are
// the browser headers produced when the login started.
func Register(ctx context.Context, doer HTTPDoer, params LoginParams, headers http.Header, now time.Time) (Registration, error) {
	if params.AuthorizationCode == "" {
		return Registration{}, fmt.Errorf("%w: authorization code missing", ErrRegistrationFailed)
	}
	payload := registerRequest{
		RequestedTokenType: []string{"bearer", "mac_dms", "website_cookies", "store_authentication_cookie"},
		Cookies:            registerCookies{WebsiteCookies: []string{}, Domain: ".amazon." + params.TLD},
		RegistrationData: registrationData{
			Domain:          "Device",
			AppVersion:      appVersion,
			DeviceSerial:    params.DeviceSerial,
			DeviceType:      deviceType,
			DeviceName:      deviceNameFormat,
			OSVersion:       osVersion,
			SoftwareVersion: softwareVersion,
			DeviceModel:     deviceModel,
			AppName:         appName,
		},
		AuthData: registrationAuth{
			ClientID:          ClientID(params.DeviceSerial),
			AuthorizationCode: params.AuthorizationCode,
			CodeVerifier:      params.CodeVerifier,
			CodeAlgorithm:     "SHA-256",
			ClientDomain:      "DeviceLegacy",
		},
		RequestedExtensions: []string{"device_info", "customer_info"},
	}

	endpoint := Locale{Domain: params.TLD}.AuthURL() + "/auth/register"
	var resp registerResponse
	status, body, err := postJSON(ctx, doer, endpoint, payload, headers, &resp)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	if status < 200 || status >= 300 {
		return Registration{}, fmt.Errorf("%w: status %d: %s", ErrRegistrationFailed, status, body)
	}
	success := resp.Response.Success
	if success == nil || success.Tokens.MacDMS.ADPToken == "" || success.Tokens.MacDMS.DevicePrivateKey == "" {
		return Registration{}, fmt.Errorf("%w: response missing device tokens: %s", ErrRegistrationFailed, body)
	}

	tokens := success.Tokens
	cookies := make(map[string]string, len(tokens.WebsiteCookies))
	for _, cookie := range tokens.WebsiteCookies {
		cookies[cookie.Name] = strings.ReplaceAll(cookie.Value, `"`, "")
	}

	reg := Registration{
		ADPToken:                  tokens.MacDMS.ADPToken,
		DevicePrivateKey:          tokens.MacDMS.DevicePrivateKey,
		AccessToken:               tokens.Bearer.AccessToken,
		RefreshToken:              tokens.Bearer.RefreshToken,
		ExpiresAt:                 now.Add(time.Duration(tokens.Bearer.ExpiresIn) * time.Second),
		CountryCode:               params.CountryCode,
		TLD:                       params.TLD,
		WebsiteCookies:            cookies,
		StoreAuthenticationCookie: tokens.StoreAuthenticationCookie.Cookie,
		DeviceInfo:                success.Extensions.DeviceInfo,
		CustomerInfo:              success.Extensions.CustomerInfo,
	}
	out, err := NewRegistration(reg)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	return out, nil
}

// RefreshToken exchanges reg's refresh token for a new access token and
// returns the updated registration. reg itself is never modified.
func RefreshToken(ctx context.Context, doer HTTPDoer, reg Registration, now time.Time) (Registration, error) {
	if reg.RefreshToken == "" {
		return reg, fmt.Errorf("%w: no refresh token", ErrTokenRefresh)
	}
	payload := map[string]string{
		"app_name":             appName,
		"app_version":          appVersion,
		"source_token":         reg.RefreshToken,
		"requested_token_type": "access_token",
		"source_token_type":    "refresh_token",
	}
	var resp struct {
		AccessToken  string  `json:"access_token"`
		RefreshToken string  `json:"refresh_token"`
		ExpiresIn    seconds `json:"expires_in"`
	}
	endpoint := Locale{Domain: reg.TLD}.AuthURL() + "/auth/token"
	status, body, err := postJSON(ctx, doer, endpoint, payload, nil, &resp)
	if err != nil {
		return reg, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	if status < 200 || status >= 300 {
		return reg, fmt.Errorf("%w: status %d: %s", ErrTokenRefresh, status, body)
	}
	if resp.AccessToken == "" {
		return reg, fmt.Errorf("%w: response missing access_token", ErrTokenRefresh)
	}

	updated := reg.clone()
	updated.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		updated.RefreshToken = resp.RefreshToken
	}
	updated.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	return updated, nil
}

// postJSON sends body as JSON and decodes a 2xx response into out. The status
// and a bounded copy of the body are returned for error reporting.
func postJSON(ctx context.Context, doer HTTPDoer, endpoint string, body any, headers http.Header, out any) (int, string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		// the transport negotiates compression itself
		if strings.EqualFold(key, "Accept-Encoding") {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("Content-Type", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	snippet := strings.TrimSpace(string(raw))
	if len(snippet) > 4096 {
		snippet = snippet[:4096]
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, snippet, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, snippet, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return resp.StatusCode, snippet, nil
}
