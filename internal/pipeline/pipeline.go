package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tapedeck/internal/convert"
	"tapedeck/internal/download"
	"tapedeck/internal/fileutil"
	"tapedeck/internal/logging"
	"tapedeck/internal/progress"
	"tapedeck/internal/services"
	"tapedeck/internal/services/audible"
)

// ErrCancelled is returned when either stage was cancelled. It matches
// context.Canceled under errors.Is.
var ErrCancelled = fmt.Errorf("pipeline: cancelled: %w", context.Canceled)

const (
	stageDownload = "download"
	stageConvert  = "convert"
)

// Source is a playable local file.
type Source struct {
	URI string
}

// ContentResolver maps an asset to the URL of its encrypted audio.
type ContentResolver interface {
	ContentURL(ctx context.Context, asset audible.Asset) (string, error)
}

// KeyResolver returns the activation key used to decrypt downloads.
type KeyResolver interface {
	ActivationKey(ctx context.Context) (string, error)
}

// Downloader streams a remote file to disk.
type Downloader interface {
	Execute(ctx context.Context, req download.Request, onProgress progress.Func) (download.Result, error)
}

// Converter transforms a local file with an external engine.
type Converter interface {
	Execute(ctx context.Context, req convert.Request, onProgress progress.Func) (convert.Result, error)
}

// Dirs locates pipeline output.
type Dirs struct {
	Downloads string
	Audio     string
}

// Pipeline wires the acquisition stages together.
type Pipeline struct {
	dirs       Dirs
	content    ContentResolver
	keys       KeyResolver
	downloader Downloader
	converter  Converter
	logger     *slog.Logger
}

// New constructs a Pipeline.
func New(dirs Dirs, content ContentResolver, keys KeyResolver, downloader Downloader, converter Converter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		dirs:       dirs,
		content:    content,
		keys:       keys,
		downloader: downloader,
		converter:  converter,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// RawPath returns where the encrypted download for asset is written.
func (p *Pipeline) RawPath(asset audible.Asset) string {
	name := asset.ASIN + ".aaxc"
	if asset.Source.FileType == audible.FileTypeAAX {
		name = asset.ASIN + "." + asset.Source.Codec + ".aax"
	}
	return filepath.Join(p.dirs.Downloads, name)
}

// OutputPath returns where the converted audio for asset is written.
func (p *Pipeline) OutputPath(asset audible.Asset) string {
	return filepath.Join(p.dirs.Audio, "audible-"+asset.ASIN+".m4b")
}

// GetPlaybackSource returns a local file for asset, acquiring it first when
// needed. An existing converted file is returned without any remote calls.
func (p *Pipeline) GetPlaybackSource(ctx context.Context, asset audible.Asset, onProgress progress.Func) (Source, error) {
	output := p.OutputPath(asset)
	if fileutil.Exists(output) {
		return Source{URI: output}, nil
	}
	if strings.TrimSpace(asset.ASIN) == "" {
		return Source{}, services.Wrap(services.ErrValidation, "pipeline", "validate asset", "asset has no asin", nil)
	}
	if !asset.Downloadable {
		return Source{}, fmt.Errorf("%w: %s", audible.ErrNotDownloadable, asset.ID)
	}
	if asset.Source.FileType != audible.FileTypeAAX {
		return Source{}, fmt.Errorf("%w: %s is %s", audible.ErrUnsupportedFormat, asset.ID, asset.Source.FileType)
	}

	ctx = services.WithAssetID(ctx, asset.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	started := time.Now()

	raw, err := p.fetch(services.WithStage(ctx, stageDownload), asset, onProgress)
	if err != nil {
		return Source{}, err
	}
	if err := p.decrypt(services.WithStage(ctx, stageConvert), raw, output, onProgress); err != nil {
		return Source{}, err
	}

	if err := fileutil.RemoveIfExists(raw); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "raw download not removed", "cleanup_failed",
			logging.Error(err),
			logging.String("path", raw),
			logging.String(logging.FieldImpact, "encrypted copy remains on disk"),
		)
	}
	logging.WithContext(ctx, p.logger).Info("playback source ready",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("path", output),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Source{URI: output}, nil
}

func (p *Pipeline) fetch(ctx context.Context, asset audible.Asset, onProgress progress.Func) (string, error) {
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	location, err := p.content.ContentURL(ctx, asset)
	if err != nil {
		return "", stageError(ctx, err)
	}
	raw := p.RawPath(asset)
	result, err := p.downloader.Execute(ctx, download.Request{Source: location, Destination: raw}, onProgress)
	if err != nil {
		return "", stageError(ctx, err)
	}
	if result.Status == download.StatusCancelled {
		logger.Info("stage cancelled", logging.String(logging.FieldEventType, "stage_cancelled"))
		return "", ErrCancelled
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("status", string(result.Status)),
		logging.Int64("bytes", result.Bytes),
	)
	return raw, nil
}

func (p *Pipeline) decrypt(ctx context.Context, raw, output string, onProgress progress.Func) error {
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	key, err := p.keys.ActivationKey(ctx)
	if err != nil {
		return stageError(ctx, err)
	}
	result, err := p.converter.Execute(ctx, convert.Request{
		Source:      raw,
		Destination: output,
		Args:        convert.DecryptAAX(key),
	}, onProgress)
	if err != nil {
		return stageError(ctx, err)
	}
	if result.Status == convert.StatusCancelled {
		logger.Info("stage cancelled", logging.String(logging.FieldEventType, "stage_cancelled"))
		return ErrCancelled
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("status", string(result.Status)),
	)
	return nil
}

// stageError folds context cancellation surfaced as an error into
// ErrCancelled and passes every other failure through unchanged.
func stageError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ErrCancelled
	}
	return err
}
