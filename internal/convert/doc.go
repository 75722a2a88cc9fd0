// Package convert runs ffmpeg to turn downloaded sources into playable or
// transcribable files.
//
// Converter owns the file lifecycle: it writes to a temporary sibling of the
// destination, renames on success, and removes partial output on failure or
// cancellation. Engine owns the process: FFmpegEngine launches ffmpeg with
// machine-readable progress on stdout and classifies how it ended. Tests swap
// commandContext to run a helper process instead of ffmpeg.
package convert
