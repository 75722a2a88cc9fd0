package audible

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

const (
	licenseTokenURL = "https://www.audible.com/license/token?player_manuf=Audible,iPhone&action=register&player_model=iPhone"

	activationBlobSize    = 0x238
	activationRecordCount = 8
	activationRecordSize  = 70

	activationStoreKeyPrefix = "activation-key:"
)

var (
	licenseBadLogin = []byte("BAD_LOGIN")
	licenseWhoops   = []byte("Whoops")
	licenseGroupID  = []byte("group_id")

	activationKeyPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)
)

// ParseActivationKey extracts the activation key from a license token
// response. The trailing 0x238 bytes hold eight 70-byte records each followed
// by one padding byte; the key is the first little-endian uint32 of the
// joined records, rendered as eight lowercase hex digits.
func ParseActivationKey(payload []byte) (string, error) {
	if bytes.Contains(payload, licenseBadLogin) || bytes.Contains(payload, licenseWhoops) {
		return "", fmt.Errorf("%w: license endpoint refused the device", ErrAuthenticationRejected)
	}
	if !bytes.Contains(payload, licenseGroupID) {
		return "", fmt.Errorf("%w: license payload missing group_id", ErrMalformedResponse)
	}
	if len(payload) < activationBlobSize {
		return "", fmt.Errorf("%w: license payload is %d bytes, need %d", ErrMalformedResponse, len(payload), activationBlobSize)
	}

	blob := payload[len(payload)-activationBlobSize:]
	joined := make([]byte, 0, activationRecordCount*activationRecordSize)
	for i := range activationRecordCount {
		start := i * (activationRecordSize + 1)
		joined = append(joined, blob[start:start+activationRecordSize]...)
	}
	return fmt.Sprintf("%08x", binary.LittleEndian.Uint32(joined[:4])), nil
}

// FetchActivationKey asks the license endpoint for a fresh activation key.
// The request is signed by doer.
func FetchActivationKey(ctx context.Context, doer HTTPDoer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, licenseTokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("build license request: %w", err)
	}
	resp, err := doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("license request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", responseError(req, resp, "activation key")
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read license response: %w", err)
	}
	return ParseActivationKey(payload)
}

func validActivationKey(value string) bool {
	return activationKeyPattern.MatchString(value)
}
