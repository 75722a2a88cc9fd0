package config

const (
	defaultConfigPath            = "~/.config/tapedeck/config.toml"
	defaultDataDir               = "~/.local/share/tapedeck"
	defaultLogDir                = "~/.local/share/tapedeck/logs"
	defaultCountryCode           = "us"
	defaultQuality               = "best"
	defaultCatalogPageSize       = 50
	defaultCacheTTLSeconds       = 900
	defaultProgressIntervalMS    = 1000
	defaultRequestTimeoutSeconds = 30
	defaultFFmpegBinary          = "ffmpeg"
	defaultTranscriptionModel    = "large-v3-turbo"
	defaultChunkSeconds          = 60
	defaultVADMethod             = "silero"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults. Directories
// left empty are derived from DataDir during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Source: Source{
			CountryCode:     defaultCountryCode,
			Quality:         defaultQuality,
			PageSize:        defaultCatalogPageSize,
			CacheTTLSeconds: defaultCacheTTLSeconds,
		},
		Download: Download{
			ProgressIntervalMS:    defaultProgressIntervalMS,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Convert: Convert{
			FFmpegBinary: defaultFFmpegBinary,
		},
		Transcription: Transcription{
			Model:        defaultTranscriptionModel,
			ChunkSeconds: defaultChunkSeconds,
			VADMethod:    defaultVADMethod,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
