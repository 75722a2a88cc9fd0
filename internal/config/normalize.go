package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tapedeck/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeConvert()
	c.normalizeTranscription()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.downloads_dir", &c.Paths.DownloadsDir, filepath.Join(c.Paths.DataDir, "source")},
		{"paths.audio_dir", &c.Paths.AudioDir, filepath.Join(c.Paths.DataDir, "audio")},
		{"paths.cache_dir", &c.Paths.CacheDir, filepath.Join(c.Paths.DataDir, "cache")},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.state_path", &c.Paths.StatePath, filepath.Join(c.Paths.DataDir, "state.db")},
	}
	for _, entry := range derived {
		if strings.TrimSpace(*entry.value) == "" {
			*entry.value = entry.def
		}
		if *entry.value, err = expandPath(*entry.value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeSource() {
	if value, ok := os.LookupEnv("TAPEDECK_COUNTRY"); ok && strings.TrimSpace(value) != "" {
		c.Source.CountryCode = value
	}
	c.Source.CountryCode = strings.ToLower(strings.TrimSpace(c.Source.CountryCode))
	if c.Source.CountryCode == "" {
		c.Source.CountryCode = defaultCountryCode
	}
	c.Source.Quality = strings.ToLower(strings.TrimSpace(c.Source.Quality))
	if c.Source.Quality == "" {
		c.Source.Quality = defaultQuality
	}
	if c.Source.PageSize <= 0 {
		c.Source.PageSize = defaultCatalogPageSize
	}
}

func (c *Config) normalizeConvert() {
	if value, ok := os.LookupEnv("TAPEDECK_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Convert.FFmpegBinary = value
	}
	c.Convert.FFmpegBinary = strings.TrimSpace(c.Convert.FFmpegBinary)
	if c.Convert.FFmpegBinary == "" {
		c.Convert.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	switch lang := strings.ToLower(strings.TrimSpace(c.Transcription.Language)); {
	case lang == "" || lang == "auto":
		c.Transcription.Language = language.ForCountry(c.Source.CountryCode)
	case language.Normalize(lang) != "":
		c.Transcription.Language = language.Normalize(lang)
	default:
		c.Transcription.Language = lang
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	if c.Transcription.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
