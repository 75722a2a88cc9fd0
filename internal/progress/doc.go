// Package progress defines the events the downloader, converter, and
// transcriber emit while they work, and folds them into a coarse fetch
// status for display.
package progress
