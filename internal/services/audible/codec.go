package audible

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"tapedeck/internal/logging"
)

// Quality selects which advertised codec to download.
type Quality string

const (
	QualityBest   Quality = "best"
	QualityHigh   Quality = "high"
	QualityNormal Quality = "normal"
)

// ParseQuality validates a configured quality name.
func ParseQuality(value string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(value))); q {
	case QualityBest, QualityHigh, QualityNormal:
		return q, nil
	case "":
		return QualityBest, nil
	default:
		return "", fmt.Errorf("unknown quality %q (expected best, high, or normal)", value)
	}
}

var qualityCodecNames = map[Quality]string{
	QualityHigh:   "aax_44_128",
	QualityNormal: "aax_44_64",
}

const codecFamilyPrefix = "aax_"

// FileType is the container of a downloadable source.
type FileType string

const (
	// FileTypeAAX is a discrete encrypted download with a named codec.
	FileTypeAAX FileType = "aax"
	// FileTypeAAXC is the streaming-only variant with no discrete codec.
	FileTypeAAXC FileType = "aaxc"
)

// DownloadSourceMetadata identifies the variant to download for an item.
// Codec and CodecName are empty for FileTypeAAXC.
type DownloadSourceMetadata struct {
	FileType  FileType `json:"file_type"`
	Codec     string   `json:"codec,omitempty"`
	CodecName string   `json:"codec_name,omitempty"`
}

// Codec is one entry of an item's available_codecs list.
type Codec struct {
	Name          string `json:"name"`
	EnhancedCodec string `json:"enhanced_codec"`
	Format        string `json:"format,omitempty"`
}

// SelectCodec applies the quality policy to an item's codec list. Items that
// are all-you-can-listen or advertise no codecs are streaming-only. An exact
// match for high or normal wins; otherwise the codec with the highest sample
// rate, then bit rate, is chosen and the fallback is logged.
func SelectCodec(item LibraryItem, quality Quality, logger *slog.Logger) DownloadSourceMetadata {
	if item.IsAYCE || len(item.AvailableCodecs) == 0 {
		return DownloadSourceMetadata{FileType: FileTypeAAXC}
	}

	if target, ok := qualityCodecNames[quality]; ok {
		folder := cases.Fold()
		want := folder.String(target)
		for _, codec := range item.AvailableCodecs {
			if folder.String(codec.Name) == want {
				return aaxMetadata(codec)
			}
		}
	}

	best, ok := highestCodec(item.AvailableCodecs)
	if !ok {
		return DownloadSourceMetadata{FileType: FileTypeAAXC}
	}
	if quality != QualityBest {
		logging.WarnWithContext(logger, "requested codec unavailable, using highest", "codec_fallback",
			logging.String("asin", item.ASIN),
			logging.String("quality", string(quality)),
			logging.String("codec", best.Name),
			logging.String(logging.FieldImpact, "download quality differs from configuration"),
			logging.String(logging.FieldErrorHint, "set source.quality = \"best\" to silence this warning"),
		)
	}
	return aaxMetadata(best)
}

func aaxMetadata(codec Codec) DownloadSourceMetadata {
	return DownloadSourceMetadata{FileType: FileTypeAAX, Codec: codec.EnhancedCodec, CodecName: codec.Name}
}

func highestCodec(codecs []Codec) (Codec, bool) {
	var (
		best     Codec
		bestRate int
		bestBits int
		found    bool
	)
	for _, codec := range codecs {
		rate, bits, ok := parseCodecName(codec.Name)
		if !ok {
			continue
		}
		if !found || rate > bestRate || (rate == bestRate && bits > bestBits) {
			best, bestRate, bestBits, found = codec, rate, bits, true
		}
	}
	return best, found
}

// parseCodecName reads "aax_<sampleKHz>_<bitrateKbps>".
func parseCodecName(name string) (int, int, bool) {
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, codecFamilyPrefix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(lower, codecFamilyPrefix), "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	rate, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	bits, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return rate, bits, true
}
