// Package pipeline turns a catalog asset into a local, decrypted audio file.
//
// GetPlaybackSource is the only entry point. It short-circuits when the
// converted file already exists, otherwise it resolves the content URL,
// downloads the encrypted source, resolves the device activation key, and
// converts. Both stages report progress through one handler.
//
// The pipeline does not serialize concurrent requests for the same asset;
// callers that may overlap take a per-asset lock (the CLI uses a file lock).
package pipeline
