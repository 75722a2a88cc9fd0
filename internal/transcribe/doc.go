// Package transcribe produces timed text for windows of a converted
// audiobook.
//
// Audio is transcribed one chunk at a time. For each window the Transcriber
// extracts a 16 kHz mono WAV with the converter, hands it to an Engine, and
// caches both the WAV and the resulting segments under the cache directory,
// keyed by asset id and window bounds. A later request for the same window is
// answered from the segment cache without touching the audio.
package transcribe
