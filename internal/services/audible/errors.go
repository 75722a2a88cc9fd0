package audible

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tapedeck/internal/services"
)

var (
	// ErrSigning is returned when the device private key cannot be used.
	ErrSigning = errors.New("audible: request signing failed")
	// ErrAuthenticationRejected is returned when the license endpoint rejects the device.
	ErrAuthenticationRejected = errors.New("audible: authentication rejected")
	// ErrMalformedResponse is returned when a response is missing required data.
	ErrMalformedResponse = errors.New("audible: malformed response")
	// ErrOAuth is returned for invalid login navigation or a missing authorization code.
	ErrOAuth = errors.New("audible: oauth error")
	// ErrRegistrationFailed is returned when device registration is refused.
	ErrRegistrationFailed = errors.New("audible: device registration failed")
	// ErrTokenRefresh is returned when the refresh token exchange fails.
	ErrTokenRefresh = errors.New("audible: token refresh failed")
	// ErrDeserialization is returned when a stored registration cannot be decoded.
	ErrDeserialization = errors.New("audible: registration deserialization failed")
	// ErrParse is returned when a catalog record lacks a required field.
	ErrParse = errors.New("audible: catalog item parse error")
	// ErrNotDownloadable is returned when the item has no offline rights or is unreleased.
	ErrNotDownloadable = errors.New("audible: remote source not available")
	// ErrUnsupportedFormat is returned for streaming-only (AAXC) items.
	ErrUnsupportedFormat = errors.New("audible: unsupported source format")
	// ErrUnknownLocale is returned for country codes outside the marketplace table.
	ErrUnknownLocale = errors.New("audible: unknown marketplace")
)

// responseError converts a non-2xx response into an error carrying the status
// and a bounded slice of the body. 401 and 403 are tagged as authorization
// failures so callers can prompt for a new login.
func responseError(req *http.Request, resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := fmt.Sprintf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	marker := services.ErrTransient
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		marker = services.ErrAuthorization
	case resp.StatusCode == http.StatusNotFound:
		marker = services.ErrNotFound
	}
	return services.Wrap(marker, "audible", operation, detail, nil)
}
