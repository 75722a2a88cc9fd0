package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tapedeck/internal/config"
	"tapedeck/internal/convert"
	"tapedeck/internal/deps"
	"tapedeck/internal/download"
	"tapedeck/internal/kvstore"
	"tapedeck/internal/logging"
	"tapedeck/internal/pipeline"
	"tapedeck/internal/services"
	"tapedeck/internal/services/audible"
	"tapedeck/internal/services/whisperx"
	"tapedeck/internal/transcribe"
)

const (
	defaultEnvFile = ".env"
	refreshLeeway  = 5 * time.Minute
)

// errNotLoggedIn is returned by commands that need a registered device.
var errNotLoggedIn = services.Wrap(services.ErrAuthorization, "", "", "no device registration found", nil)

type commandContext struct {
	configFlag  *string
	envFileFlag *string

	// httpClient overrides the transport for tests.
	httpClient audible.HTTPDoer

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	storeOnce sync.Once
	store     *kvstore.Store
	storeErr  error

	clientMu sync.Mutex
	client   *audible.Client
	catalog  *audible.Catalog
}

func newCommandContext(configFlag, envFileFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		envFileFlag: envFileFlag,
	}
}

// loadEnvFile applies KEY=value pairs from the env file without overriding
// variables already set. A missing default .env is ignored.
func (c *commandContext) loadEnvFile() error {
	path := defaultEnvFile
	explicit := false
	if c.envFileFlag != nil && strings.TrimSpace(*c.envFileFlag) != "" {
		path = strings.TrimSpace(*c.envFileFlag)
		explicit = true
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "load config", "", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.configValue())
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) openStore() (*kvstore.Store, error) {
	c.storeOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.storeErr = err
			return
		}
		c.store, c.storeErr = kvstore.Open(cfg)
	})
	return c.store, c.storeErr
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func (c *commandContext) metadataHTTPClient() audible.HTTPDoer {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: c.configValue().RequestTimeout()}
}

// downloadHTTPClient signs size lookups and transfers with the device key like
// every other outbound call. It has no overall timeout, since a transfer can
// run for many minutes.
func (c *commandContext) downloadHTTPClient(reg audible.Registration) (*audible.Client, error) {
	var transport audible.HTTPDoer = &http.Client{}
	if c.httpClient != nil {
		transport = c.httpClient
	}
	return audible.NewClient(reg,
		audible.WithHTTPClient(transport),
		audible.WithLogger(c.loggerValue()),
	)
}

func (c *commandContext) saveRegistration(ctx context.Context, reg audible.Registration) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	serialized, err := reg.Serialize()
	if err != nil {
		return err
	}
	return store.Set(ctx, audible.RegistrationStoreKey, serialized)
}

func (c *commandContext) loadRegistration(ctx context.Context) (audible.Registration, error) {
	store, err := c.openStore()
	if err != nil {
		return audible.Registration{}, err
	}
	serialized, ok, err := store.Get(ctx, audible.RegistrationStoreKey)
	if err != nil {
		return audible.Registration{}, err
	}
	if !ok {
		return audible.Registration{}, errNotLoggedIn
	}
	return audible.ParseRegistration(serialized)
}

// audibleClient returns the signing client for the stored registration,
// refreshing the access token first when it is about to expire.
func (c *commandContext) audibleClient(ctx context.Context) (*audible.Client, error) {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	reg, err := c.loadRegistration(ctx)
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	client, err := audible.NewClient(reg,
		audible.WithHTTPClient(c.metadataHTTPClient()),
		audible.WithStore(store),
		audible.WithLogger(c.loggerValue()),
		audible.WithTokenRefreshed(c.saveRegistration),
	)
	if err != nil {
		return nil, err
	}
	if reg.Expired(time.Now(), refreshLeeway) {
		if _, err := client.RefreshAccessToken(ctx); err != nil {
			logging.WarnWithContext(c.loggerValue(), "access token refresh failed", "token_refresh",
				logging.Error(err),
				logging.String(logging.FieldImpact, "signed catalog requests continue with the device token"),
			)
		}
	}
	c.client = client
	return client, nil
}

func (c *commandContext) audibleCatalog(ctx context.Context) (*audible.Catalog, error) {
	client, err := c.audibleClient(ctx)
	if err != nil {
		return nil, err
	}
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	if c.catalog != nil {
		return c.catalog, nil
	}
	cfg := c.configValue()
	quality, err := audible.ParseQuality(cfg.Source.Quality)
	if err != nil {
		return nil, err
	}
	c.catalog = audible.NewCatalog(client,
		audible.WithQuality(quality),
		audible.WithCacheTTL(cfg.CatalogCacheTTL()),
		audible.WithCatalogLogger(c.loggerValue()),
	)
	return c.catalog, nil
}

func (c *commandContext) converter() *convert.Converter {
	cfg := c.configValue()
	engine := convert.NewFFmpegEngine(deps.ResolveFFmpegPath(cfg.FFmpegBinary()))
	return convert.New(engine, c.loggerValue())
}

func (c *commandContext) playbackPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	client, err := c.audibleClient(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := c.audibleCatalog(ctx)
	if err != nil {
		return nil, err
	}
	transfer, err := c.downloadHTTPClient(client.Registration())
	if err != nil {
		return nil, err
	}
	cfg := c.configValue()
	logger := c.loggerValue()
	downloader := download.New(
		download.WithHTTPClient(transfer),
		download.WithProgressInterval(cfg.ProgressInterval()),
		download.WithLogger(logger),
	)
	dirs := pipeline.Dirs{Downloads: cfg.Paths.DownloadsDir, Audio: cfg.Paths.AudioDir}
	return pipeline.New(dirs, catalog, client, downloader, c.converter(), logger), nil
}

func (c *commandContext) transcriber() *transcribe.Transcriber {
	cfg := c.configValue()
	svc := whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcription.Model,
		Language:    cfg.Transcription.Language,
		CUDAEnabled: cfg.Transcription.CUDAEnabled,
		VADMethod:   cfg.Transcription.VADMethod,
		HFToken:     cfg.Transcription.HFToken,
	}, c.loggerValue())
	return transcribe.New(cfg.Paths.CacheDir, c.converter(), transcribe.NewWhisperXEngine(svc), c.loggerValue())
}

// lockAsset takes the per-asset file lock so two invocations never write the
// same download or output concurrently.
func (c *commandContext) lockAsset(ctx context.Context, assetID string) (func(), error) {
	path := c.configValue().LockPath(strings.ReplaceAll(assetID, ":", "-"))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", assetID, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: %w", assetID, context.Cause(ctx))
	}
	return func() { _ = lock.Unlock() }, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
