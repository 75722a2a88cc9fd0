package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tapedeck/internal/fileutil"
	"tapedeck/internal/logging"
	"tapedeck/internal/preflight"
	"tapedeck/internal/progress"
)

const (
	defaultProgressInterval = time.Second
	tempSuffix              = ".tmp"
)

// Status is the outcome of a download that did not fail.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Request describes one transfer. ExpectedSize, when positive, replaces the
// HEAD request used to learn the remote size.
type Request struct {
	Source       string
	Destination  string
	Force        bool
	ExpectedSize int64
}

// Result reports how a download ended.
type Result struct {
	Status Status
	Path   string
	Bytes  int64
}

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// SpaceChecker fails when dir cannot hold need more bytes.
type SpaceChecker func(dir string, need int64) error

// Option customises Downloader construction.
type Option func(*Downloader)

// WithHTTPClient overrides the transport.
func WithHTTPClient(client HTTPDoer) Option {
	return func(d *Downloader) {
		d.client = client
	}
}

// WithProgressInterval sets how often progress is sampled while streaming.
func WithProgressInterval(interval time.Duration) Option {
	return func(d *Downloader) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithSpaceChecker replaces the free-space preflight.
func WithSpaceChecker(check SpaceChecker) Option {
	return func(d *Downloader) {
		d.checkSpace = check
	}
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// Downloader streams sources to destinations. It is safe for concurrent use
// on distinct destinations.
type Downloader struct {
	client     HTTPDoer
	interval   time.Duration
	logger     *slog.Logger
	checkSpace SpaceChecker

	mu       sync.Mutex
	verified map[string]fileStamp
}

// New constructs a Downloader.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		client:     &http.Client{},
		interval:   defaultProgressInterval,
		checkSpace: preflight.EnsureFreeSpace,
		verified:   make(map[string]fileStamp),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "downloader")
	return d
}

// Execute downloads req.Source to req.Destination, emitting download-progress
// events while the transfer runs.
func (d *Downloader) Execute(ctx context.Context, req Request, onProgress progress.Func) (Result, error) {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Destination) == "" {
		return Result{}, fmt.Errorf("%w: source and destination are required", ErrTransferFailed)
	}
	logger := logging.WithContext(ctx, d.logger).With(logging.String("destination", req.Destination))

	if !req.Force {
		if size, ok := d.recall(req.Destination); ok {
			logger.Debug("destination verified earlier, skipping")
			return Result{Status: StatusSkipped, Path: req.Destination, Bytes: size}, nil
		}
	}

	expected := req.ExpectedSize
	if expected <= 0 {
		size, err := d.remoteSize(ctx, req.Source)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Status: StatusCancelled, Path: req.Destination}, nil
			}
			return Result{}, err
		}
		expected = size
	}

	if !req.Force {
		if size, ok, _ := fileutil.Size(req.Destination); ok && size == expected {
			d.remember(req.Destination)
			logger.Info("destination already complete, skipping", logging.Int64("bytes", size))
			return Result{Status: StatusSkipped, Path: req.Destination, Bytes: size}, nil
		}
	}

	tmp := req.Destination + tempSuffix
	d.forget(req.Destination)
	if err := fileutil.RemoveIfExists(tmp, req.Destination); err != nil {
		return Result{}, fmt.Errorf("%w: remove stale files: %w", ErrTransferFailed, err)
	}
	dir := filepath.Dir(req.Destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: create %s: %w", ErrTransferFailed, dir, err)
	}
	if d.checkSpace != nil {
		if err := d.checkSpace(dir, expected); err != nil {
			return Result{}, err
		}
	}

	written, err := d.stream(ctx, req.Source, tmp, expected, onProgress)
	if err == nil && written != expected {
		err = fmt.Errorf("%w: wrote %d bytes, expected %d", ErrTransferSizeMismatch, written, expected)
	}
	if err == nil {
		if renameErr := os.Rename(tmp, req.Destination); renameErr != nil {
			err = fmt.Errorf("%w: finalize: %w", ErrTransferFailed, renameErr)
		}
	}
	if err != nil {
		_ = fileutil.RemoveIfExists(tmp, req.Destination)
		if ctx.Err() != nil {
			logger.Info("download cancelled", logging.Int64("bytes", written))
			return Result{Status: StatusCancelled, Path: req.Destination, Bytes: written}, nil
		}
		logging.WarnWithContext(logger, "download failed", "download_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "partial files were removed"),
			logging.String(logging.FieldErrorHint, "retry the fetch"),
		)
		return Result{}, err
	}

	onProgress.Emit(progress.Event{Type: progress.DownloadProgress, Loaded: expected, Total: expected})
	d.remember(req.Destination)
	logger.Info("download complete", logging.Int64("bytes", written))
	return Result{Status: StatusCompleted, Path: req.Destination, Bytes: written}, nil
}

func (d *Downloader) remoteSize(ctx context.Context, source string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, source, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build size request: %w", ErrTransferFailed, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: size request: %w", ErrTransferFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: size request returned %d", ErrTransferFailed, resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("%w: remote size unknown", ErrTransferFailed)
	}
	return resp.ContentLength, nil
}

func (d *Downloader) stream(ctx context.Context, source, tmp string, expected int64, onProgress progress.Func) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %w", ErrTransferFailed, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: server returned %d", ErrTransferFailed, resp.StatusCode)
	}

	stop := d.watch(tmp, expected, onProgress)
	defer stop()

	written, err := fileutil.WriteStream(ctx, tmp, resp.Body)
	if err != nil {
		return written, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return written, nil
}

// watch samples the size of path on every tick until the returned stop
// function is called. stop waits for the sampler to exit, so no event is
// emitted after it returns.
func (d *Downloader) watch(path string, total int64, onProgress progress.Func) func() {
	if onProgress == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if size, ok, _ := fileutil.Size(path); ok {
					onProgress(progress.Event{Type: progress.DownloadProgress, Loaded: size, Total: total})
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func (d *Downloader) remember(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verified[path] = fileStamp{size: info.Size(), modTime: info.ModTime()}
}

func (d *Downloader) forget(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.verified, path)
}

func (d *Downloader) recall(path string) (int64, bool) {
	d.mu.Lock()
	stamp, ok := d.verified[path]
	d.mu.Unlock()
	if !ok {
		return 0, false
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != stamp.size || !info.ModTime().Equal(stamp.modTime) {
		d.forget(path)
		return 0, false
	}
	return stamp.size, true
}
