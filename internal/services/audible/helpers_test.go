package audible

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// handlerDoer serves requests in-process through h, whatever their host.
func handlerDoer(h http.HandlerFunc) doerFunc {
	return func(req *http.Request) (*http.Response, error) {
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Result(), nil
	}
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

func testPrivateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("generate key: %v", testKeyErr)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(testKey)})
	return testKey, string(block)
}

func testRegistration(t *testing.T) Registration {
	t.Helper()
	_, keyPEM := testPrivateKey(t)
	return Registration{
		ADPToken:         "{adp-token}",
		DevicePrivateKey: keyPEM,
		AccessToken:      "Atna|access",
		RefreshToken:     "Atnr|refresh",
		ExpiresAt:        time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		CountryCode:      "us",
		TLD:              "com",
		DeviceInfo:       map[string]any{"device_name": "Ada's Audible for iPhone"},
		CustomerInfo:     map[string]any{"name": "Ada"},
	}
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
	gets   int
	sets   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return "", false, s.getErr
	}
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

var errStoreDown = errors.New("store unavailable")
