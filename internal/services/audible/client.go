package audible

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tapedeck/internal/logging"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// KeyValueStore persists small opaque strings such as the serialized
// registration and the activation key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// RefreshFunc receives the registration after a successful token refresh so
// the caller can persist it.
type RefreshFunc func(ctx context.Context, reg Registration) error

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport used for every outbound call.
func WithHTTPClient(client HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithStore injects durable storage for the activation key.
func WithStore(store KeyValueStore) ClientOption {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTokenRefreshed registers the callback invoked after RefreshAccessToken succeeds.
func WithTokenRefreshed(fn RefreshFunc) ClientOption {
	return func(c *Client) {
		c.onRefresh = fn
	}
}

// Client signs and sends requests on behalf of one registered device. It owns
// its Registration exclusively.
type Client struct {
	httpClient HTTPDoer
	store      KeyValueStore
	logger     *slog.Logger
	onRefresh  RefreshFunc
	now        func() time.Time

	mu     sync.RWMutex
	reg    Registration
	signer *Signer

	keyMu         sync.Mutex
	activationKey string
}

// NewClient builds a signing client for reg. A malformed device key is
// reported here as ErrSigning.
func NewClient(reg Registration, opts ...ClientOption) (*Client, error) {
	signer, err := NewSigner(reg.ADPToken, reg.DevicePrivateKey)
	if err != nil {
		return nil, err
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 0},
		reg:        reg.clone(),
		signer:     signer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.logger = logging.NewComponentLogger(c.logger, "audible-client")
	return c, nil
}

// Do signs req with the device key and sends it. The body is buffered so the
// exact bytes sent are the bytes signed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = data
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}

	c.mu.RLock()
	signer := c.signer
	c.mu.RUnlock()

	if err := signer.Apply(req, body); err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// TLD returns the marketplace domain of the registered device.
func (c *Client) TLD() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.TLD
}

// Registration returns a copy of the current registration.
func (c *Client) Registration() Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.clone()
}

// ActivationKey returns the device activation key, reading memory, then the
// store, then the license endpoint. A freshly fetched key is written back to
// the store; a store failure is logged and does not fail the call.
func (c *Client) ActivationKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	if c.activationKey != "" {
		return c.activationKey, nil
	}

	storeKey := activationStoreKeyPrefix + SourceID
	if c.store != nil {
		cached, ok, err := c.store.Get(ctx, storeKey)
		switch {
		case err != nil:
			logging.WarnWithContext(c.logger, "activation key store read failed", "activation_key_store",
				logging.Error(err),
				logging.String(logging.FieldImpact, "activation key will be fetched from the network"),
			)
		case ok && validActivationKey(cached):
			c.activationKey = cached
			return cached, nil
		}
	}

	key, err := FetchActivationKey(ctx, c)
	if err != nil {
		return "", err
	}
	c.activationKey = key
	c.logger.Info("activation key resolved")

	if c.store != nil {
		if err := c.store.Set(ctx, storeKey, key); err != nil {
			logging.WarnWithContext(c.logger, "activation key store write failed", "activation_key_store",
				logging.Error(err),
				logging.String(logging.FieldImpact, "activation key will be fetched again next run"),
			)
		}
	}
	return key, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// On failure the current registration is left untouched.
func (c *Client) RefreshAccessToken(ctx context.Context) (Registration, error) {
	current := c.Registration()
	updated, err := RefreshToken(ctx, c.httpClient, current, c.now())
	if err != nil {
		return current, err
	}

	c.mu.Lock()
	c.reg.AccessToken = updated.AccessToken
	c.reg.RefreshToken = updated.RefreshToken
	c.reg.ExpiresAt = updated.ExpiresAt
	snapshot := c.reg.clone()
	c.mu.Unlock()

	c.logger.Info("access token refreshed", logging.String("expires_at", snapshot.ExpiresAt.UTC().Format(time.RFC3339)))
	if c.onRefresh != nil {
		if err := c.onRefresh(ctx, snapshot); err != nil {
			return snapshot, fmt.Errorf("persist refreshed registration: %w", err)
		}
	}
	return snapshot, nil
}
