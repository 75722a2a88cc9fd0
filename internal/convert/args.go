package convert

import (
	"strconv"
	"time"
)

// ArgsFunc renders engine arguments for a given input and output path.
type ArgsFunc func(input, output string) []string

// DecryptAAX copies the audio streams of an AAX file into an M4B container
// using the device activation key.
func DecryptAAX(activationKey string) ArgsFunc {
	return func(input, output string) []string {
		return []string{"-activation_bytes", activationKey, "-i", input, "-c", "copy", output}
	}
}

// ExtractWAV cuts [start, start+duration) from input as 16 kHz mono PCM.
func ExtractWAV(start, duration time.Duration) ArgsFunc {
	return func(input, output string) []string {
		return []string{
			"-ss", formatSeconds(start),
			"-t", formatSeconds(duration),
			"-i", input,
			"-ar", "16000",
			"-ac", "1",
			"-c:a", "pcm_s16le",
			output,
		}
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
