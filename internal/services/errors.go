package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("authorization error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancellation reports whether err represents caller-initiated termination
// rather than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// FailureHint maps a wrapped error to the next step a user should take.
func FailureHint(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCancellation(err):
		return "operation cancelled; rerun to start from a clean state"
	case errors.Is(err, ErrAuthorization):
		return "run 'tapedeck login' to register this device again"
	case errors.Is(err, ErrConfiguration):
		return "check the configuration with 'tapedeck config validate'"
	case errors.Is(err, ErrExternalTool):
		return "verify ffmpeg is installed and on PATH"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation):
		return "check the asset id with 'tapedeck library'"
	default:
		return "retry the command; partial files were removed"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
