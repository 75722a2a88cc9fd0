package progress

import (
	"fmt"
	"strings"
	"time"
)

// Describe renders an event as a one-line label such as
// "Download 42.0% (12.3 MiB / 29.3 MiB)".
func Describe(event Event) string {
	label := stageLabel(event.Type)
	if event.Total <= 0 {
		if event.Loaded > 0 {
			return fmt.Sprintf("%s %s", label, FormatBytes(event.Loaded))
		}
		return label
	}
	if event.Type == TranscriptionProgress {
		return fmt.Sprintf("%s %.1f%%", label, event.Percent())
	}
	return fmt.Sprintf("%s %.1f%% (%s / %s)", label, event.Percent(), FormatBytes(event.Loaded), FormatBytes(event.Total))
}

// FormatBytes renders n with binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatETA renders a remaining duration compactly, e.g. "1h2m" or "45s".
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}

func stageLabel(t EventType) string {
	switch t {
	case DownloadProgress:
		return "Download"
	case ConversionProgress:
		return "Convert"
	case TranscriptionProgress:
		return "Transcribe"
	default:
		return "Progress"
	}
}
