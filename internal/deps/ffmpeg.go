package deps

import (
	"os/exec"
	"strings"
)

const defaultFFmpeg = "ffmpeg"

// ResolveFFmpegPath returns the ffmpeg executable to run. A configured value
// wins when it resolves; otherwise "ffmpeg" is looked up on PATH. The bare
// name is returned when nothing resolves so the caller's exec error names it.
func ResolveFFmpegPath(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		if resolved, err := exec.LookPath(configured); err == nil {
			return resolved
		}
		return configured
	}
	if resolved, err := exec.LookPath(defaultFFmpeg); err == nil {
		return resolved
	}
	return defaultFFmpeg
}
