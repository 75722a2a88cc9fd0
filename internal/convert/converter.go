package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tapedeck/internal/fileutil"
	"tapedeck/internal/logging"
	"tapedeck/internal/progress"
	"tapedeck/internal/services"
)

var (
	// ErrConversionFailed is returned when the engine fails or its output
	// cannot be finalized.
	ErrConversionFailed = errors.New("convert: conversion failed")
	// ErrSourceMissing is returned when the input file does not exist.
	ErrSourceMissing = errors.New("convert: source missing")
)

// Status is the outcome of a conversion that did not fail.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Request describes one conversion.
type Request struct {
	Source      string
	Destination string
	Force       bool
	Args        ArgsFunc
}

// Result reports how a conversion ended.
type Result struct {
	Status Status
	Path   string
}

// Converter runs an Engine with temp-file discipline around the destination.
type Converter struct {
	engine Engine
	logger *slog.Logger
}

// New constructs a Converter.
func New(engine Engine, logger *slog.Logger) *Converter {
	return &Converter{
		engine: engine,
		logger: logging.NewComponentLogger(logger, "converter"),
	}
}

// TempPath returns the in-progress path for destination. The destination's
// extension is kept last so the engine can infer the container.
func TempPath(destination string) string {
	return destination + ".tmp" + filepath.Ext(destination)
}

// Execute converts req.Source into req.Destination, emitting
// conversion-progress events measured against the source size.
func (c *Converter) Execute(ctx context.Context, req Request, onProgress progress.Func) (Result, error) {
	if req.Args == nil || strings.TrimSpace(req.Destination) == "" {
		return Result{}, fmt.Errorf("%w: destination and arguments are required", ErrConversionFailed)
	}
	logger := logging.WithContext(ctx, c.logger).With(logging.String("destination", req.Destination))

	if !req.Force && fileutil.Exists(req.Destination) {
		logger.Debug("destination exists, skipping conversion")
		return Result{Status: StatusSkipped, Path: req.Destination}, nil
	}
	total, ok, err := fileutil.Size(req.Source)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat %s: %w", ErrSourceMissing, req.Source, err)
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrSourceMissing, req.Source)
	}

	tmp := TempPath(req.Destination)
	if err := fileutil.RemoveIfExists(tmp); err != nil {
		return Result{}, fmt.Errorf("%w: remove stale temp: %w", ErrConversionFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: create output directory: %w", ErrConversionFailed, err)
	}

	outcome, runErr := c.engine.Run(ctx, Command{Args: req.Args(req.Source, tmp)}, func(stats Stats) {
		onProgress.Emit(progress.Event{Type: progress.ConversionProgress, Loaded: stats.TotalSize, Total: total})
	})

	switch outcome {
	case OutcomeSuccess:
		if err := os.Rename(tmp, req.Destination); err != nil {
			_ = fileutil.RemoveIfExists(tmp, req.Destination)
			return Result{}, fmt.Errorf("%w: finalize output: %w", ErrConversionFailed, err)
		}
		onProgress.Emit(progress.Event{Type: progress.ConversionProgress, Loaded: total, Total: total})
		logger.Info("conversion complete")
		return Result{Status: StatusConverted, Path: req.Destination}, nil
	case OutcomeCancel:
		_ = fileutil.RemoveIfExists(tmp)
		logger.Info("conversion cancelled")
		return Result{Status: StatusCancelled, Path: req.Destination}, nil
	default:
		_ = fileutil.RemoveIfExists(tmp, req.Destination)
		if runErr == nil {
			runErr = errors.New("engine reported failure")
		}
		logging.WarnWithContext(logger, "conversion failed", "conversion_failed",
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "verify ffmpeg is installed and supports the source format"),
			logging.String(logging.FieldImpact, "partial output was removed"),
		)
		return Result{}, fmt.Errorf("%w: %w", ErrConversionFailed, services.Wrap(services.ErrExternalTool, "convert", "run engine", "", runErr))
	}
}
