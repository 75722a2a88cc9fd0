package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tapedeck/internal/config"
	"tapedeck/internal/deps"
	"tapedeck/internal/services/audible"
)

// ErrInsufficientSpace is returned when a filesystem cannot hold a transfer.
var ErrInsufficientSpace = errors.New("insufficient free space")

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes reports the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// EnsureFreeSpace fails with ErrInsufficientSpace when the filesystem holding
// dir has fewer than need bytes available. A filesystem that cannot be
// queried is not treated as full.
func EnsureFreeSpace(dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	free, err := FreeBytes(dir)
	if err != nil {
		return nil
	}
	if free < uint64(need) {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrInsufficientSpace, dir, free, need)
	}
	return nil
}

// CheckSystemDeps evaluates the external binaries for the given config. uvx
// is only needed for transcription, so its absence is not fatal.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     deps.ResolveFFmpegPath(cfg.FFmpegBinary()),
			Description: "Required for AAX decryption and audio chunking",
		},
		{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Runs WhisperX for transcription",
			Optional:    true,
		},
	})
}

// CheckRegistration reports whether a usable device registration is stored.
func CheckRegistration(ctx context.Context, store audible.KeyValueStore, now time.Time) Result {
	const name = "Audible registration"

	serialized, ok, err := store.Get(ctx, audible.RegistrationStoreKey)
	switch {
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("store read failed (%v)", err)}
	case !ok:
		return Result{Name: name, Detail: "not logged in (run 'tapedeck login')"}
	}
	reg, err := audible.ParseRegistration(serialized)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("stored registration unreadable (%v)", err)}
	}
	label := reg.CountryCode
	if device := reg.DeviceName(); device != "" {
		label = fmt.Sprintf("%s, %s", device, reg.CountryCode)
	}
	if reg.Expired(now, 0) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (access token expired; refreshed on next use)", label)}
	}
	return Result{Name: name, Passed: true, Detail: label}
}
