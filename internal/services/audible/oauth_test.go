package audible

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"tapedeck/internal/logging"
)

func newTestFlow(doer HTTPDoer) *OAuthFlow {
	return NewOAuthFlow(
		WithOAuthHTTPClient(doer),
		WithOAuthLogger(logging.NewNop()),
		WithRandom(bytes.NewReader(bytes.Repeat([]byte{7}, 1024))),
		WithDeviceSerial("SERIAL1"),
	)
}

func TestOAuthStartBuildsAuthorizationURL(t *testing.T) {
	flow := newTestFlow(nil)
	source, err := flow.Start("uk")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	parsed, err := url.Parse(source.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Host != "www.amazon.co.uk" || parsed.Path != "/ap/signin" {
		t.Fatalf("url = %s", source.URL)
	}
	query := parsed.Query()
	if got := query.Get("openid.oa2.client_id"); got != "device:"+ClientID("SERIAL1") {
		t.Fatalf("client_id = %q", got)
	}
	if got := query.Get("marketPlaceId"); got != "A2I9A3Q2GNFNGQ" {
		t.Fatalf("marketPlaceId = %q", got)
	}
	if got := query.Get("openid.return_to"); got != "https://www.amazon.co.uk/ap/maplanding" {
		t.Fatalf("return_to = %q", got)
	}

	state := flow.State()
	if state.Status != OAuthPending {
		t.Fatalf("status = %s", state.Status)
	}
	if query.Get("openid.oa2.code_challenge") != CodeChallenge(state.Params.CodeVerifier) {
		t.Fatal("code challenge does not match verifier")
	}
	if !strings.Contains(source.Headers.Get("Cookie"), "frc=") {
		t.Fatalf("cookie header = %q", source.Headers.Get("Cookie"))
	}
}

func TestClientIDHexEncodesSerial(t *testing.T) {
	if got := ClientID("AB"); got != "4142234132435a4a5a474c4b324a4a564d" {
		t.Fatalf("ClientID = %q", got)
	}
}

func TestOAuthStartTwiceIsRejected(t *testing.T) {
	flow := newTestFlow(nil)
	if _, err := flow.Start("us"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := flow.Start("us"); !errors.Is(err, ErrOAuth) {
		t.Fatalf("expected ErrOAuth, got %v", err)
	}
	if flow.State().Status != OAuthPending {
		t.Fatalf("status changed to %s", flow.State().Status)
	}
}

func TestOAuthStartUnknownLocale(t *testing.T) {
	flow := newTestFlow(nil)
	_, err := flow.Start("zz")
	if !errors.Is(err, ErrOAuth) || !errors.Is(err, ErrUnknownLocale) {
		t.Fatalf("expected ErrOAuth wrapping ErrUnknownLocale, got %v", err)
	}
	state := flow.State()
	if state.Status != OAuthError || state.ErrorKind != ErrorKindOAuth {
		t.Fatalf("state = %+v", state)
	}
}

func TestOAuthHandleNavigation(t *testing.T) {
	t.Run("ignores other pages", func(t *testing.T) {
		flow := newTestFlow(nil)
		_, _ = flow.Start("us")
		handled, err := flow.HandleNavigation("https://www.amazon.com/ap/signin?foo=bar")
		if handled || err != nil {
			t.Fatalf("handled=%v err=%v", handled, err)
		}
		if flow.State().Status != OAuthPending {
			t.Fatal("state changed")
		}
	})

	t.Run("landing without code", func(t *testing.T) {
		flow := newTestFlow(nil)
		_, _ = flow.Start("us")
		handled, err := flow.HandleNavigation("https://www.amazon.com/ap/maplanding")
		if !handled || !errors.Is(err, ErrOAuth) {
			t.Fatalf("handled=%v err=%v", handled, err)
		}
		if state := flow.State(); state.Status != OAuthError || state.ErrorKind != ErrorKindOAuth {
			t.Fatalf("state = %+v", state)
		}
	})

	t.Run("landing before start", func(t *testing.T) {
		flow := newTestFlow(nil)
		handled, err := flow.HandleNavigation("https://www.amazon.com/ap/maplanding?openid.oa2.authorization_code=abc")
		if !handled || err == nil {
			t.Fatalf("handled=%v err=%v", handled, err)
		}
		if state := flow.State(); state.ErrorKind != ErrorKindUnknown {
			t.Fatalf("error kind = %s", state.ErrorKind)
		}
	})

	t.Run("landing with code", func(t *testing.T) {
		flow := newTestFlow(nil)
		_, _ = flow.Start("us")
		handled, err := flow.HandleNavigation("https://www.amazon.com/ap/maplanding?openid.oa2.authorization_code=abc")
		if !handled || err != nil {
			t.Fatalf("handled=%v err=%v", handled, err)
		}
		state := flow.State()
		if state.Status != OAuthComplete || state.Params.AuthorizationCode != "abc" {
			t.Fatalf("state = %+v", state)
		}
		if state.Headers.Get("User-Agent") == "" {
			t.Fatal("browser headers not carried into complete state")
		}
	})
}

func registerSuccessBody(t *testing.T) []byte {
	t.Helper()
	_, keyPEM := testPrivateKey(t)
	body := map[string]any{
		"response": map[string]any{
			"success": map[string]any{
				"tokens": map[string]any{
					"mac_dms": map[string]any{"adp_token": "adp", "device_private_key": keyPEM},
					"bearer":  map[string]any{"access_token": "Atna|a", "refresh_token": "Atnr|r", "expires_in": "3600"},
					"website_cookies": []map[string]string{
						{"Name": "session-id", "Value": `"abc"`},
					},
					"store_authentication_cookie": map[string]string{"cookie": "store"},
				},
				"extensions": map[string]any{
					"device_info":   map[string]any{"device_name": "Ada's iPhone"},
					"customer_info": map[string]any{"name": "Ada"},
				},
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestOAuthRegisterSuccess(t *testing.T) {
	success := registerSuccessBody(t)
	var sent registerRequest
	doer := handlerDoer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.String() != "https://api.amazon.com/auth/register" {
			t.Errorf("unexpected url %s", r.URL)
		}
		if r.Header.Get("Accept-Encoding") != "" {
			t.Errorf("Accept-Encoding forwarded: %q", r.Header.Get("Accept-Encoding"))
		}
		_ = json.NewDecoder(r.Body).Decode(&sent)
		_, _ = w.Write(success)
	})
	flow := newTestFlow(doer)
	_, _ = flow.Start("us")
	_, _ = flow.HandleNavigation("https://www.amazon.com/ap/maplanding?openid.oa2.authorization_code=code-1")

	reg, err := flow.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sent.AuthData.AuthorizationCode != "code-1" || sent.AuthData.ClientID != ClientID("SERIAL1") {
		t.Fatalf("auth data = %+v", sent.AuthData)
	}
	if reg.ADPToken != "adp" || reg.TLD != "com" || reg.CountryCode != "us" {
		t.Fatalf("registration = %+v", reg)
	}
	if reg.WebsiteCookies["session-id"] != "abc" {
		t.Fatalf("cookies = %v", reg.WebsiteCookies)
	}
	if reg.DeviceName() != "Ada's iPhone" {
		t.Fatalf("device name = %q", reg.DeviceName())
	}
	if flow.State().Status != OAuthRegistered {
		t.Fatalf("status = %s", flow.State().Status)
	}
}

func TestOAuthRegisterFailure(t *testing.T) {
	doer := handlerDoer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"response":{"error":{"code":"InvalidValue"}}}`, http.StatusBadRequest)
	})
	flow := newTestFlow(doer)
	_, _ = flow.Start("us")
	_, _ = flow.HandleNavigation("https://www.amazon.com/ap/maplanding?openid.oa2.authorization_code=code-1")

	if _, err := flow.Register(context.Background()); !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	state := flow.State()
	if state.Status != OAuthError || state.ErrorKind != ErrorKindDeviceRegistration {
		t.Fatalf("state = %+v", state)
	}
	if !strings.Contains(state.Detail, "InvalidValue") {
		t.Fatalf("expected response body in detail, got %q", state.Detail)
	}
}

func TestOAuthLandingAfterErrorKeepsState(t *testing.T) {
	flow := newTestFlow(nil)
	_, _ = flow.Start("us")
	if _, err := flow.HandleNavigation("https://www.amazon.com/ap/maplanding"); !errors.Is(err, ErrOAuth) {
		t.Fatalf("expected ErrOAuth for missing code, got %v", err)
	}

	handled, err := flow.HandleNavigation("https://www.amazon.com/ap/maplanding?openid.oa2.authorization_code=code-1")
	if !handled || !errors.Is(err, ErrOAuth) {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if !strings.Contains(err.Error(), string(ErrorKindUnknown)) {
		t.Fatalf("expected %s in error, got %v", ErrorKindUnknown, err)
	}
	state := flow.State()
	if state.Status != OAuthError || state.ErrorKind != ErrorKindOAuth {
		t.Fatalf("terminal error state overwritten: %+v", state)
	}
	if state.Detail != "landing page has no authorization code" {
		t.Fatalf("detail = %q", state.Detail)
	}
}

func TestOAuthLandingAfterRegisteredKeepsState(t *testing.T) {
	flow := newTestFlow(nil)
	flow.state = OAuthState{Status: OAuthRegistered, Params: LoginParams{CountryCode: "us"}}

	handled, err := flow.HandleNavigation("https://www.amazon.com/ap/maplanding?openid.oa2.authorization_code=code-2")
	if !handled || !errors.Is(err, ErrOAuth) {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if state := flow.State(); state.Status != OAuthRegistered || state.ErrorKind != "" {
		t.Fatalf("registered state overwritten: %+v", state)
	}
}

func TestOAuthRegisterRequiresCompleteState(t *testing.T) {
	flow := newTestFlow(nil)
	if _, err := flow.Register(context.Background()); !errors.Is(err, ErrOAuth) {
		t.Fatalf("expected ErrOAuth, got %v", err)
	}
}
