package audible

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapedeck/internal/logging"
)

// OAuthStatus names the active member of the login state machine.
type OAuthStatus string

const (
	OAuthInit       OAuthStatus = "init"
	OAuthPending    OAuthStatus = "pending"
	OAuthComplete   OAuthStatus = "complete"
	OAuthError      OAuthStatus = "error"
	OAuthRegistered OAuthStatus = "registered"
)

// OAuthErrorKind classifies a failed login.
type OAuthErrorKind string

const (
	ErrorKindOAuth              OAuthErrorKind = "oauth_error"
	ErrorKindUnknown            OAuthErrorKind = "unknown_error"
	ErrorKindDeviceRegistration OAuthErrorKind = "device_registration_error"
)

const (
	landingPath          = "/ap/maplanding"
	authorizationCodeKey = "openid.oa2.authorization_code"
	browserUserAgent     = "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"
	frcLength            = 313
	verifierLength       = 32
)

// AuthorizationSource is what the interactive browser surface must load to
// let the user sign in.
type AuthorizationSource struct {
	URL     string
	Headers http.Header
}

// OAuthState is a snapshot of the login state machine. Which fields are
// populated depends on Status: Source and Params for pending, Params and
// Headers for complete, ErrorKind and Detail for error.
type OAuthState struct {
	Status    OAuthStatus
	Source    AuthorizationSource
	Params    LoginParams
	Headers   http.Header
	ErrorKind OAuthErrorKind
	Detail    string
}

// OAuthOption customises OAuthFlow construction.
type OAuthOption func(*OAuthFlow)

// WithOAuthHTTPClient overrides the transport used for device registration.
func WithOAuthHTTPClient(client HTTPDoer) OAuthOption {
	return func(f *OAuthFlow) {
		f.httpClient = client
	}
}

// WithOAuthLogger attaches a logger.
func WithOAuthLogger(logger *slog.Logger) OAuthOption {
	return func(f *OAuthFlow) {
		f.logger = logger
	}
}

// WithRandom replaces the entropy source used for the verifier and cookies.
func WithRandom(r io.Reader) OAuthOption {
	return func(f *OAuthFlow) {
		f.random = r
	}
}

// WithDeviceSerial pins the device serial instead of generating one.
func WithDeviceSerial(serial string) OAuthOption {
	return func(f *OAuthFlow) {
		f.deviceSerial = serial
	}
}

// OAuthFlow drives one interactive device login: Start produces the sign-in
// page, HandleNavigation watches for the landing redirect, and Register
// trades the authorization code for a Registration. Errors are terminal; a
// new flow is needed to retry.
type OAuthFlow struct {
	httpClient   HTTPDoer
	logger       *slog.Logger
	random       io.Reader
	deviceSerial string
	now          func() time.Time

	mu    sync.Mutex
	state OAuthState
}

// NewOAuthFlow returns a flow in the init state.
func NewOAuthFlow(opts ...OAuthOption) *OAuthFlow {
	f := &OAuthFlow{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		random:     rand.Reader,
		now:        time.Now,
		state:      OAuthState{Status: OAuthInit},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.NewComponentLogger(f.logger, "audible-oauth")
	return f
}

// State returns a snapshot of the current state.
func (f *OAuthFlow) State() OAuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start moves init to pending and returns the sign-in page for the browser.
func (f *OAuthFlow) Start(countryCode string) (AuthorizationSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Status != OAuthInit {
		return AuthorizationSource{}, fmt.Errorf("%w: login already %s", ErrOAuth, f.state.Status)
	}

	loc, err := LookupLocale(countryCode)
	if err != nil {
		return AuthorizationSource{}, f.failLocked(ErrorKindOAuth, err.Error(), fmt.Errorf("%w: %w", ErrOAuth, err))
	}

	serial := f.deviceSerial
	if serial == "" {
		serial = strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	}
	verifier, err := f.randomString(verifierLength, base64.RawURLEncoding)
	if err != nil {
		return AuthorizationSource{}, f.failLocked(ErrorKindUnknown, err.Error(), err)
	}
	headers, err := f.browserHeaders()
	if err != nil {
		return AuthorizationSource{}, f.failLocked(ErrorKindUnknown, err.Error(), err)
	}

	source := AuthorizationSource{
		URL:     authorizationURL(loc, serial, CodeChallenge(verifier)),
		Headers: headers,
	}
	f.state = OAuthState{
		Status: OAuthPending,
		Source: source,
		Params: LoginParams{
			CountryCode:  loc.CountryCode,
			TLD:          loc.Domain,
			DeviceSerial: serial,
			CodeVerifier: verifier,
		},
	}
	f.logger.Info("login started", logging.String("country_code", loc.CountryCode))
	return source, nil
}

// HandleNavigation inspects a URL the browser navigated to. Only the landing
// page is acted on; other URLs return false and leave the state unchanged.
func (f *OAuthFlow) HandleNavigation(rawURL string) (bool, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Path != landingPath {
		return false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state.Status {
	case OAuthPending:
	case OAuthError, OAuthRegistered:
		// terminal states are not overwritten
		return true, fmt.Errorf("%w: %s: landing page reached while %s", ErrOAuth, ErrorKindUnknown, f.state.Status)
	default:
		detail := fmt.Sprintf("landing page reached while %s", f.state.Status)
		return true, f.failLocked(ErrorKindUnknown, detail, nil)
	}

	code := parsed.Query().Get(authorizationCodeKey)
	if code == "" {
		return true, f.failLocked(ErrorKindOAuth, "landing page has no authorization code", nil)
	}

	params := f.state.Params
	params.AuthorizationCode = code
	f.state = OAuthState{
		Status:  OAuthComplete,
		Params:  params,
		Headers: f.state.Source.Headers.Clone(),
	}
	f.logger.Info("authorization code received")
	return true, nil
}

// Register exchanges the completed login for a device registration.
func (f *OAuthFlow) Register(ctx context.Context) (Registration, error) {
	f.mu.Lock()
	if f.state.Status != OAuthComplete {
		status := f.state.Status
		f.mu.Unlock()
		return Registration{}, fmt.Errorf("%w: cannot register while %s", ErrOAuth, status)
	}
	params := f.state.Params
	headers := f.state.Headers.Clone()
	f.mu.Unlock()

	reg, err := Register(ctx, f.httpClient, params, headers, f.now())

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return Registration{}, f.failLocked(ErrorKindDeviceRegistration, err.Error(), err)
	}
	f.state = OAuthState{Status: OAuthRegistered, Params: params}
	f.logger.Info("device registered", logging.String("device_name", reg.DeviceName()))
	return reg, nil
}

func (f *OAuthFlow) failLocked(kind OAuthErrorKind, detail string, cause error) error {
	f.state = OAuthState{Status: OAuthError, ErrorKind: kind, Detail: detail}
	f.logger.Warn("login failed",
		logging.String("error_kind", string(kind)),
		logging.String("detail", detail),
		logging.String(logging.FieldEventType, "oauth_failed"),
		logging.String(logging.FieldErrorHint, "start a new login"),
		logging.String(logging.FieldImpact, "device is not registered"),
	)
	if cause != nil {
		return cause
	}
	return fmt.Errorf("%w: %s: %s", ErrOAuth, kind, detail)
}

func (f *OAuthFlow) randomString(n int, enc *base64.Encoding) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return enc.EncodeToString(buf), nil
}

func (f *OAuthFlow) browserHeaders() (http.Header, error) {
	frc, err := f.randomString(frcLength, base64.RawStdEncoding)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(map[string]any{
		"device_user_dictionary":   []string{},
		"device_registration_data": map[string]string{"software_version": softwareVersion},
		"app_identifier":           map[string]string{"app_version": appVersion, "bundle_id": "com.audible.iphone"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode device metadata: %w", err)
	}

	headers := http.Header{}
	headers.Set("User-Agent", browserUserAgent)
	headers.Set("Accept-Language", "en-US")
	headers.Set("Accept-Encoding", "gzip")
	headers.Set("Cookie", strings.Join([]string{
		"frc=" + frc,
		"map-md=" + base64.RawStdEncoding.EncodeToString(metadata),
		"amzn-app-id=MAPiOSLib/6.0/ToHideRetailLink",
	}, "; "))
	return headers, nil
}

// CodeChallenge derives the S256 PKCE challenge for verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func authorizationURL(loc Locale, deviceSerial, challenge string) string {
	query := url.Values{}
	query.Set("openid.oa2.response_type", "code")
	query.Set("openid.oa2.code_challenge_method", "S256")
	query.Set("openid.oa2.code_challenge", challenge)
	query.Set("openid.return_to", loc.AmazonURL()+landingPath)
	query.Set("openid.assoc_handle", "amzn_audible_ios_"+loc.CountryCode)
	query.Set("openid.identity", "http://specs.openid.net/auth/2.0/identifier_select")
	query.Set("pageId", "amzn_audible_ios")
	query.Set("accountStatusPolicy", "P1")
	query.Set("openid.claimed_id", "http://specs.openid.net/auth/2.0/identifier_select")
	query.Set("openid.mode", "checkid_setup")
	query.Set("openid.ns.oa2", "http://www.amazon.com/ap/ext/oauth/2")
	query.Set("openid.oa2.client_id", "device:"+ClientID(deviceSerial))
	query.Set("openid.ns.pape", "http://specs.openid.net/extensions/pape/1.0")
	query.Set("marketPlaceId", loc.MarketplaceID)
	query.Set("openid.oa2.scope", "device_auth_access")
	query.Set("forceMobileLayout", "true")
	query.Set("openid.ns", "http://specs.openid.net/auth/2.0")
	query.Set("openid.pape.max_auth_age", "0")
	return loc.AmazonURL() + "/ap/signin?" + query.Encode()
}
