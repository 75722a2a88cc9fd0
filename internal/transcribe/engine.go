package transcribe

import (
	"context"

	"tapedeck/internal/services/whisperx"
)

// Options tunes one engine run.
type Options struct {
	// OnProgress receives completion percentages in [0, 100].
	OnProgress func(percent float64)
}

// EngineRequest names a WAV file to transcribe.
type EngineRequest struct {
	URI     string
	Options Options
}

// EngineResult holds segments timed relative to the start of the WAV file.
type EngineResult struct {
	Segments []Segment
}

// Engine turns a WAV file into timed text. Implementations stop when ctx is
// cancelled.
type Engine interface {
	Execute(ctx context.Context, req EngineRequest) (EngineResult, error)
}

// WhisperXEngine adapts a whisperx.Service to Engine.
type WhisperXEngine struct {
	service *whisperx.Service
}

// NewWhisperXEngine wraps svc.
func NewWhisperXEngine(svc *whisperx.Service) *WhisperXEngine {
	return &WhisperXEngine{service: svc}
}

// Execute runs WhisperX on req.URI.
func (e *WhisperXEngine) Execute(ctx context.Context, req EngineRequest) (EngineResult, error) {
	raw, err := e.service.Transcribe(ctx, req.URI, req.Options.OnProgress)
	if err != nil {
		return EngineResult{}, err
	}
	segments := make([]Segment, 0, len(raw))
	for _, seg := range raw {
		segments = append(segments, Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
	return EngineResult{Segments: segments}, nil
}
