package convert

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Outcome classifies how an engine run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeCancel  Outcome = "cancel"
	OutcomeFailure Outcome = "failure"
)

// Command is one transcoder invocation. Args exclude the engine's own
// fixed flags.
type Command struct {
	Args []string
}

// Stats is a progress sample reported by the engine.
type Stats struct {
	TotalSize int64
}

// Engine runs a transcoder command to completion. A cancelled context yields
// OutcomeCancel; OutcomeFailure carries a non-nil error.
type Engine interface {
	Run(ctx context.Context, cmd Command, onStats func(Stats)) (Outcome, error)
}

// FFmpegEngine runs commands through the ffmpeg binary.
type FFmpegEngine struct {
	binary string
}

// NewFFmpegEngine constructs an engine for binary, defaulting to "ffmpeg".
func NewFFmpegEngine(binary string) *FFmpegEngine {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEngine{binary: binary}
}

// Binary returns the executable the engine launches.
func (e *FFmpegEngine) Binary() string {
	return e.binary
}

var ffmpegBaseArgs = []string{"-y", "-hide_banner", "-nostats", "-loglevel", "error", "-progress", "pipe:1"}

const stderrLimit = 8 * 1024

// Run launches ffmpeg and reports total_size samples from its progress
// stream.
func (e *FFmpegEngine) Run(ctx context.Context, command Command, onStats func(Stats)) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeCancel, nil
	}
	args := append(append([]string(nil), ffmpegBaseArgs...), command.Args...)
	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return OutcomeFailure, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: stderrLimit}
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return OutcomeCancel, nil
		}
		return OutcomeFailure, fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || key != "total_size" || onStats == nil {
			continue
		}
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		onStats(Stats{TotalSize: size})
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return OutcomeCancel, nil
	}
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return OutcomeFailure, fmt.Errorf("ffmpeg failed: %w", waitErr)
		}
		return OutcomeFailure, fmt.Errorf("ffmpeg failed: %w: %s", waitErr, detail)
	}
	return OutcomeSuccess, nil
}

// limitedWriter keeps the first limit bytes and discards the rest.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if remaining := w.limit - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

var _ Engine = (*FFmpegEngine)(nil)
