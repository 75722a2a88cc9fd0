// Package download streams remote audio files to disk.
//
// A Downloader writes into "<destination>.tmp" and renames on success, so a
// destination that exists is always complete. Existing files of the expected
// size are skipped, and a Downloader remembers destinations it verified so a
// repeat request for an unchanged file makes no network calls at all.
// Cancellation cleans up the same way a failure does but is reported as
// StatusCancelled rather than as an error.
package download
