// Package preflight provides readiness checks for the filesystem, external
// binaries, and the stored device registration.
//
// The downloader calls EnsureFreeSpace before streaming so a full disk fails
// fast instead of after a partial transfer. The CLI "tapedeck status" command
// runs RunAll to display overall health.
package preflight
