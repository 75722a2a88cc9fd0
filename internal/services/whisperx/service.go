package whisperx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"tapedeck/internal/language"
	"tapedeck/internal/logging"
)

// commandContext is swapped in tests.
var commandContext = exec.CommandContext

var progressPattern = regexp.MustCompile(`Progress:\s*([0-9]+(?:\.[0-9]+)?)%`)

// ErrNoOutput is returned when WhisperX exits cleanly without writing JSON.
var ErrNoOutput = errors.New("whisperx: no transcript output")

// Segment is one transcribed span from WhisperX JSON output. Times are in
// seconds from the start of the input file.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
}

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg    Config
	binary string
	logger *slog.Logger
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		binary: UVXCommand,
		logger: logging.NewComponentLogger(logger, "whisperx"),
	}
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Transcribe runs WhisperX on a WAV file and returns its segments.
// onProgress receives percentages in [0, 100] as WhisperX reports them.
func (s *Service) Transcribe(ctx context.Context, source string, onProgress func(percent float64)) ([]Segment, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("whisperx: source path required")
	}
	outputDir, err := os.MkdirTemp(filepath.Dir(source), ".whisperx-")
	if err != nil {
		return nil, fmt.Errorf("whisperx: create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	cmd := commandContext(ctx, s.binary, s.buildArgs(source, outputDir)...) //nolint:gosec
	// Torch 2.6 defaults torch.load to weights_only, which the bundled
	// pyannote checkpoints cannot satisfy.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(cmd.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("whisperx: stdout pipe: %w", err)
	}

	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("starting whisperx", logging.String("source", source), logging.String("model", s.Model()))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("whisperx: start %s: %w", s.binary, err)
	}
	scanProgress(stdout, onProgress)
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("whisperx: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	segments, err := LoadSegments(filepath.Join(outputDir, base+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoOutput
	}
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(100)
	}
	return segments, nil
}

func scanProgress(r io.Reader, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		match := progressPattern.FindStringSubmatch(scanner.Text())
		if match == nil || onProgress == nil {
			continue
		}
		if percent, err := strconv.ParseFloat(match[1], 64); err == nil {
			onProgress(min(percent, 100))
		}
	}
	// drain so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--print_progress", "True",
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := language.Normalize(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	segments := payload.Segments[:0]
	for _, seg := range payload.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
