package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tapedeck/internal/config"
	"tapedeck/internal/kvstore"
	"tapedeck/internal/services/audible"
	"tapedeck/internal/testsupport"
)

const testASIN = "B08G9PRS1K"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string

	mu       sync.Mutex
	requests []string
	headers  map[string]http.Header
	handler  http.HandlerFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{cfg: cfg, configPath: configPath}
	env.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.0/library":
			writeTestJSON(t, w, map[string]any{"items": []any{testLibraryItem()}})
		case "/1.0/library/" + testASIN:
			writeTestJSON(t, w, map[string]any{"item": testLibraryItem()})
		default:
			http.NotFound(w, r)
		}
	}
	return env
}

func (e *cliTestEnv) Do(req *http.Request) (*http.Response, error) {
	e.mu.Lock()
	key := req.Method + " " + req.URL.Path
	e.requests = append(e.requests, key)
	if e.headers == nil {
		e.headers = map[string]http.Header{}
	}
	e.headers[key] = req.Header.Clone()
	handler := e.handler
	e.mu.Unlock()

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec.Result(), nil
}

func (e *cliTestEnv) seenRequests() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.requests...)
}

func (e *cliTestEnv) requestHeader(key string) http.Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.headers[key]
}

func (e *cliTestEnv) openStore(t *testing.T) *kvstore.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, e.cfg)
}

// login stores a registration whose access token outlives the test.
func (e *cliTestEnv) login(t *testing.T) {
	t.Helper()
	reg := audible.Registration{
		ADPToken:         "{adp-token}",
		DevicePrivateKey: testKeyPEM(t),
		AccessToken:      "Atna|access",
		RefreshToken:     "Atnr|refresh",
		ExpiresAt:        time.Now().Add(time.Hour),
		CountryCode:      "us",
		TLD:              "com",
		DeviceInfo:       map[string]any{"device_name": "Ada's tapedeck"},
		CustomerInfo:     map[string]any{"name": "Ada"},
	}
	serialized, err := reg.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := e.openStore(t).Set(context.Background(), audible.RegistrationStoreKey, serialized); err != nil {
		t.Fatalf("store registration: %v", err)
	}
}

func (e *cliTestEnv) outputPath() string {
	return filepath.Join(e.cfg.Paths.AudioDir, "audible-"+testASIN+".m4b")
}

func runCLI(t *testing.T, env *cliTestEnv, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	var configFlag, envFileFlag string
	ctx := newCommandContext(&configFlag, &envFileFlag)
	ctx.httpClient = env
	cmd := buildRootCommand(ctx)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
downloads_dir = %q
audio_dir = %q
cache_dir = %q
log_dir = %q
state_path = %q

[source]
country_code = "us"

[logging]
level = "error"
`,
		cfg.Paths.DataDir,
		cfg.Paths.DownloadsDir,
		cfg.Paths.AudioDir,
		cfg.Paths.CacheDir,
		cfg.Paths.LogDir,
		cfg.Paths.StatePath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func testLibraryItem() map[string]any {
	return map[string]any{
		"asin":                 testASIN,
		"title":                "Project Hail Mary",
		"authors":              []any{map[string]any{"name": "Andy Weir"}},
		"narrators":            []any{map[string]any{"name": "Ray Porter"}},
		"publication_datetime": "2021-05-04T05:00:00Z",
		"runtime_length_min":   970,
		"customer_rights":      map[string]any{"is_consumable_offline": true},
		"available_codecs": []any{
			map[string]any{"name": "aax_44_128", "enhanced_codec": "LC_128_44100_stereo", "format": "Enhanced"},
		},
		"product_images": map[string]any{"500": "https://m.media/500.jpg"},
	}
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

var (
	testKeyOnce sync.Once
	testKey     string
	testKeyErr  error
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			testKeyErr = err
			return
		}
		testKey = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	})
	if testKeyErr != nil {
		t.Fatalf("generate key: %v", testKeyErr)
	}
	return testKey
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
