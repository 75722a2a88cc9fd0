package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the on-disk layout for downloaded, converted, and cached data.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	DownloadsDir string `toml:"downloads_dir"`
	AudioDir     string `toml:"audio_dir"`
	CacheDir     string `toml:"cache_dir"`
	LogDir       string `toml:"log_dir"`
	StatePath    string `toml:"state_path"`
}

// Source contains the marketplace and catalog settings for the audiobook source.
type Source struct {
	CountryCode     string `toml:"country_code"`
	Quality         string `toml:"quality"`
	PageSize        int    `toml:"catalog_page_size"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// Download contains transfer tuning.
type Download struct {
	ProgressIntervalMS    int `toml:"progress_interval_ms"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Convert contains the external transcoder location.
type Convert struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
}

// Transcription contains WhisperX settings for chunked transcription.
type Transcription struct {
	Model        string `toml:"model"`
	Language     string `toml:"language"`
	ChunkSeconds int    `toml:"chunk_seconds"`
	CUDAEnabled  bool   `toml:"cuda_enabled"`
	VADMethod    string `toml:"vad_method"`
	HFToken      string `toml:"hf_token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tapedeck.
//
// Configuration sections by subsystem:
//   - Paths: data, download, audio, cache, and log directories
//   - Source: marketplace country, codec quality, and catalog paging
//   - Download: progress polling and request timeouts
//   - Convert: ffmpeg binary
//   - Transcription: WhisperX model and chunking
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Download      Download      `toml:"download"`
	Convert       Convert       `toml:"convert"`
	Transcription Transcription `toml:"transcription"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tapedeck.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates every directory the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.DownloadsDir,
		c.Paths.AudioDir,
		c.Paths.CacheDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.StatePath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for conversion.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Convert.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// ProgressInterval returns the download progress polling period.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Download.ProgressIntervalMS) * time.Millisecond
}

// RequestTimeout returns the timeout applied to metadata requests. Streaming
// downloads are bounded by context cancellation rather than this value.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Download.RequestTimeoutSeconds) * time.Second
}

// CatalogCacheTTL returns how long parsed catalog items stay cached.
func (c *Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.Source.CacheTTLSeconds) * time.Second
}

// ChunkDuration returns the transcription chunk length.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.Transcription.ChunkSeconds) * time.Second
}

// LockPath returns the advisory lock file used to serialize work on one asset.
func (c *Config) LockPath(assetID string) string {
	return filepath.Join(c.Paths.DataDir, "locks", assetID+".lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
