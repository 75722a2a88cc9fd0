package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"tapedeck/internal/language"
)

// supportedCountries mirrors the marketplaces the audible client knows about.
var supportedCountries = []string{"us", "ca", "uk", "au", "fr", "de", "jp", "it", "in", "es", "br"}

var supportedQualities = []string{"best", "high", "normal"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSource() error {
	if !slices.Contains(supportedCountries, c.Source.CountryCode) {
		return fmt.Errorf("source.country_code %q is not supported (expected one of %s)", c.Source.CountryCode, strings.Join(supportedCountries, ", "))
	}
	if !slices.Contains(supportedQualities, c.Source.Quality) {
		return fmt.Errorf("source.quality %q must be one of %s", c.Source.Quality, strings.Join(supportedQualities, ", "))
	}
	if c.Source.PageSize > 1000 {
		return errors.New("source.catalog_page_size must be 1000 or less")
	}
	if c.Source.CacheTTLSeconds < 0 {
		return errors.New("source.cache_ttl_seconds must be zero or positive")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.ProgressIntervalMS <= 0 {
		return errors.New("download.progress_interval_ms must be positive")
	}
	if c.Download.RequestTimeoutSeconds <= 0 {
		return errors.New("download.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.ChunkSeconds <= 0 {
		return errors.New("transcription.chunk_seconds must be positive")
	}
	if lang := c.Transcription.Language; lang != "" && language.Normalize(lang) == "" {
		return fmt.Errorf("transcription.language %q is not a supported language", c.Transcription.Language)
	}
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.vad_method %q must be silero or pyannote", c.Transcription.VADMethod)
	}
	if c.Transcription.VADMethod == "pyannote" && c.Transcription.HFToken == "" {
		return errors.New("transcription.hf_token is required when vad_method is pyannote")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}
