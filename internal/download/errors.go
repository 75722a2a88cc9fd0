package download

import (
	"errors"

	"tapedeck/internal/preflight"
)

var (
	// ErrTransferFailed is returned when the remote size is unknown or the
	// stream cannot be read or written.
	ErrTransferFailed = errors.New("download: transfer failed")
	// ErrTransferSizeMismatch is returned when the bytes written differ from
	// the advertised size.
	ErrTransferSizeMismatch = errors.New("download: size mismatch")
	// ErrInsufficientSpace is returned before streaming when the destination
	// filesystem cannot hold the file.
	ErrInsufficientSpace = preflight.ErrInsufficientSpace
)
