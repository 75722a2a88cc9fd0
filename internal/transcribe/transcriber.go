package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"tapedeck/internal/convert"
	"tapedeck/internal/fileutil"
	"tapedeck/internal/logging"
	"tapedeck/internal/progress"
	"tapedeck/internal/services"
)

const (
	segmentCacheDir = "text-segments"
	wavCacheDir     = "wav-chunks"
	sourceExt       = ".m4b"
)

var (
	// ErrCancelled is returned when extraction or transcription was
	// cancelled. It matches context.Canceled under errors.Is.
	ErrCancelled = fmt.Errorf("transcribe: cancelled: %w", context.Canceled)
	// ErrInvalidRequest is returned for an empty id or an empty window.
	ErrInvalidRequest = errors.New("transcribe: invalid request")
	// ErrInvalidSource is returned when the audio is missing or is not M4B.
	ErrInvalidSource = errors.New("transcribe: invalid audio source")
	// ErrTranscriptionFailed wraps engine failures.
	ErrTranscriptionFailed = errors.New("transcribe: transcription failed")
)

// Segment is a span of transcribed text. Start and End are seconds from the
// start of the audiobook.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Request selects the audio and window to transcribe.
type Request struct {
	ID       string
	AudioURI string
	Window   Window
}

// Converter extracts WAV chunks from the source audio.
type Converter interface {
	Execute(ctx context.Context, req convert.Request, onProgress progress.Func) (convert.Result, error)
}

// Transcriber produces cached segments for audio windows.
type Transcriber struct {
	cacheDir  string
	converter Converter
	engine    Engine
	logger    *slog.Logger
}

// New constructs a Transcriber that caches under cacheDir.
func New(cacheDir string, converter Converter, engine Engine, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cacheDir:  cacheDir,
		converter: converter,
		engine:    engine,
		logger:    logging.NewComponentLogger(logger, "transcriber"),
	}
}

// SegmentsPath returns the segment cache file for req.
func (t *Transcriber) SegmentsPath(req Request) string {
	return filepath.Join(t.cacheDir, segmentCacheDir, req.ID+"-"+req.Window.String()+".json")
}

// ChunkPath returns the WAV cache file for req.
func (t *Transcriber) ChunkPath(req Request) string {
	return filepath.Join(t.cacheDir, wavCacheDir, req.ID+"-"+req.Window.String()+".wav")
}

// Segments returns the transcript for req.Window, emitting
// conversion-progress while the WAV chunk is extracted and
// transcription-progress while the engine runs.
func (t *Transcriber) Segments(ctx context.Context, req Request, onProgress progress.Func) ([]Segment, error) {
	if strings.TrimSpace(req.ID) == "" || !req.Window.Valid() {
		return nil, fmt.Errorf("%w: id %q window %s", ErrInvalidRequest, req.ID, req.Window)
	}
	ctx = services.WithAssetID(ctx, req.ID)
	logger := logging.WithContext(ctx, t.logger).With(logging.String("window", req.Window.String()))

	cachePath := t.SegmentsPath(req)
	if segments, ok := t.readCache(logger, cachePath); ok {
		logger.Debug("segments served from cache")
		return segments, nil
	}

	chunk, err := t.ensureChunk(services.WithStage(ctx, "extract"), req, onProgress)
	if err != nil {
		return nil, err
	}

	result, err := t.engine.Execute(services.WithStage(ctx, "transcribe"), EngineRequest{
		URI: chunk,
		Options: Options{OnProgress: func(percent float64) {
			onProgress.Emit(progress.Event{Type: progress.TranscriptionProgress, Loaded: int64(math.Round(percent)), Total: 100})
		}},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, services.Wrap(services.ErrExternalTool, "transcribe", "run engine", "", err))
	}

	offset := req.Window.Start.Seconds()
	segments := make([]Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, Segment{Text: seg.Text, Start: seg.Start + offset, End: seg.End + offset})
	}

	if err := writeCache(cachePath, segments); err != nil {
		logging.WarnWithContext(logger, "segment cache not written", "cache_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "window will be transcribed again on the next request"),
		)
	}
	logger.Info("window transcribed", logging.Int("segments", len(segments)))
	return segments, nil
}

func (t *Transcriber) readCache(logger *slog.Logger, path string) ([]Segment, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		logging.WarnWithContext(logger, "discarding corrupt segment cache", "cache_corrupt",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldImpact, "window will be transcribed again"),
		)
		if rmErr := fileutil.RemoveIfExists(path); rmErr != nil {
			logger.Error("failed to remove corrupt segment cache", logging.Error(rmErr))
		}
		return nil, false
	}
	return segments, true
}

func (t *Transcriber) ensureChunk(ctx context.Context, req Request, onProgress progress.Func) (string, error) {
	chunk := t.ChunkPath(req)
	if fileutil.Exists(chunk) {
		return chunk, nil
	}

	source := strings.TrimPrefix(req.AudioURI, "file://")
	if !fileutil.Exists(source) {
		return "", fmt.Errorf("%w: %s does not exist", ErrInvalidSource, source)
	}
	if ext := filepath.Ext(source); !strings.EqualFold(ext, sourceExt) {
		return "", fmt.Errorf("%w: expected %s, got %q", ErrInvalidSource, sourceExt, ext)
	}

	result, err := t.converter.Execute(ctx, convert.Request{
		Source:      source,
		Destination: chunk,
		Args:        convert.ExtractWAV(req.Window.Start, req.Window.Width()),
	}, onProgress)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", ErrCancelled
		}
		return "", err
	}
	if result.Status == convert.StatusCancelled {
		return "", ErrCancelled
	}
	return chunk, nil
}

func writeCache(path string, segments []Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
