package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tapedeck/internal/convert"
	"tapedeck/internal/download"
	"tapedeck/internal/logging"
	"tapedeck/internal/progress"
	"tapedeck/internal/services/audible"
)

type fakeContent struct {
	url   string
	err   error
	calls int
}

func (f *fakeContent) ContentURL(context.Context, audible.Asset) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeKeys struct {
	key   string
	err   error
	calls int
}

func (f *fakeKeys) ActivationKey(context.Context) (string, error) {
	f.calls++
	return f.key, f.err
}

type fakeDownloader struct {
	status download.Status
	err    error
	calls  int
	req    download.Request
}

func (f *fakeDownloader) Execute(_ context.Context, req download.Request, onProgress progress.Func) (download.Result, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return download.Result{}, f.err
	}
	status := f.status
	if status == "" {
		status = download.StatusCompleted
	}
	if status != download.StatusCancelled {
		if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
			return download.Result{}, err
		}
		if err := os.WriteFile(req.Destination, []byte("encrypted"), 0o644); err != nil {
			return download.Result{}, err
		}
	}
	onProgress.Emit(progress.Event{Type: progress.DownloadProgress, Loaded: 9, Total: 9})
	return download.Result{Status: status, Path: req.Destination, Bytes: 9}, nil
}

type fakeConverter struct {
	status convert.Status
	err    error
	calls  int
	args   []string
}

func (f *fakeConverter) Execute(_ context.Context, req convert.Request, onProgress progress.Func) (convert.Result, error) {
	f.calls++
	f.args = req.Args(req.Source, req.Destination)
	if f.err != nil {
		return convert.Result{}, f.err
	}
	status := f.status
	if status == "" {
		status = convert.StatusConverted
	}
	if status == convert.StatusConverted {
		if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
			return convert.Result{}, err
		}
		if err := os.WriteFile(req.Destination, []byte("m4b"), 0o644); err != nil {
			return convert.Result{}, err
		}
	}
	onProgress.Emit(progress.Event{Type: progress.ConversionProgress, Loaded: 9, Total: 9})
	return convert.Result{Status: status, Path: req.Destination}, nil
}

type harness struct {
	pipeline   *Pipeline
	content    *fakeContent
	keys       *fakeKeys
	downloader *fakeDownloader
	converter  *fakeConverter
	dirs       Dirs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		content:    &fakeContent{url: "https://cds.audible.co.uk/file.aax"},
		keys:       &fakeKeys{key: "1a2b3c4d"},
		downloader: &fakeDownloader{},
		converter:  &fakeConverter{},
		dirs:       Dirs{Downloads: filepath.Join(base, "downloads"), Audio: filepath.Join(base, "audio")},
	}
	h.pipeline = New(h.dirs, h.content, h.keys, h.downloader, h.converter, logging.NewNop())
	return h
}

func testAsset() audible.Asset {
	return audible.Asset{
		ID:           audible.AssetID("B08G9PRS1K"),
		ASIN:         "B08G9PRS1K",
		Title:        "Project Hail Mary",
		Downloadable: true,
		Source: audible.DownloadSourceMetadata{
			FileType:  audible.FileTypeAAX,
			Codec:     "LC_128_44100_stereo",
			CodecName: "aax_44_128",
		},
	}
}

func TestGetPlaybackSourceAcquiresAndConverts(t *testing.T) {
	h := newHarness(t)
	asset := testAsset()

	var seen []progress.EventType
	source, err := h.pipeline.GetPlaybackSource(context.Background(), asset, func(e progress.Event) {
		seen = append(seen, e.Type)
	})
	if err != nil {
		t.Fatalf("GetPlaybackSource: %v", err)
	}
	wantOutput := filepath.Join(h.dirs.Audio, "audible-B08G9PRS1K.m4b")
	if source.URI != wantOutput {
		t.Fatalf("URI = %q, want %q", source.URI, wantOutput)
	}
	wantRaw := filepath.Join(h.dirs.Downloads, "B08G9PRS1K.LC_128_44100_stereo.aax")
	if h.downloader.req.Destination != wantRaw || h.downloader.req.Source != h.content.url {
		t.Fatalf("download request = %+v", h.downloader.req)
	}
	if got := strings.Join(h.converter.args, " "); !strings.Contains(got, "-activation_bytes 1a2b3c4d -i "+wantRaw) {
		t.Fatalf("converter args = %q", got)
	}
	if _, err := os.Stat(wantRaw); !os.IsNotExist(err) {
		t.Fatal("raw download was not removed after conversion")
	}
	if len(seen) != 2 || seen[0] != progress.DownloadProgress || seen[1] != progress.ConversionProgress {
		t.Fatalf("events = %v", seen)
	}
}

func TestGetPlaybackSourceExistingOutputMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	asset := testAsset()
	output := h.pipeline.OutputPath(asset)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(output, []byte("m4b"), 0o644); err != nil {
		t.Fatal(err)
	}

	source, err := h.pipeline.GetPlaybackSource(context.Background(), asset, nil)
	if err != nil {
		t.Fatalf("GetPlaybackSource: %v", err)
	}
	if source.URI != output {
		t.Fatalf("URI = %q", source.URI)
	}
	if h.content.calls+h.keys.calls+h.downloader.calls+h.converter.calls != 0 {
		t.Fatal("existing output triggered pipeline calls")
	}
}

func TestGetPlaybackSourceRejectsUnavailableAssets(t *testing.T) {
	notDownloadable := testAsset()
	notDownloadable.Downloadable = false
	streaming := testAsset()
	streaming.Source = audible.DownloadSourceMetadata{FileType: audible.FileTypeAAXC}

	tests := []struct {
		name  string
		asset audible.Asset
		want  error
	}{
		{name: "not downloadable", asset: notDownloadable, want: audible.ErrNotDownloadable},
		{name: "aaxc", asset: streaming, want: audible.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.pipeline.GetPlaybackSource(context.Background(), tt.asset, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if h.content.calls != 0 || h.downloader.calls != 0 {
				t.Fatal("rejected asset reached remote stages")
			}
		})
	}
}

func TestGetPlaybackSourceDownloadCancelled(t *testing.T) {
	h := newHarness(t)
	h.downloader.status = download.StatusCancelled

	_, err := h.pipeline.GetPlaybackSource(context.Background(), testAsset(), nil)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if h.keys.calls != 0 || h.converter.calls != 0 {
		t.Fatal("conversion ran after cancelled download")
	}
}

func TestGetPlaybackSourceConversionCancelledKeepsRaw(t *testing.T) {
	h := newHarness(t)
	h.converter.status = convert.StatusCancelled
	asset := testAsset()

	_, err := h.pipeline.GetPlaybackSource(context.Background(), asset, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if _, statErr := os.Stat(h.pipeline.RawPath(asset)); statErr != nil {
		t.Fatalf("complete raw download should remain: %v", statErr)
	}
}

func TestGetPlaybackSourceStageFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("content url", func(t *testing.T) {
		h := newHarness(t)
		h.content.err = boom
		if _, err := h.pipeline.GetPlaybackSource(context.Background(), testAsset(), nil); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if h.downloader.calls != 0 {
			t.Fatal("downloaded without a content url")
		}
	})

	t.Run("activation key", func(t *testing.T) {
		h := newHarness(t)
		h.keys.err = audible.ErrAuthenticationRejected
		if _, err := h.pipeline.GetPlaybackSource(context.Background(), testAsset(), nil); !errors.Is(err, audible.ErrAuthenticationRejected) {
			t.Fatalf("expected ErrAuthenticationRejected, got %v", err)
		}
		if h.converter.calls != 0 {
			t.Fatal("converted without an activation key")
		}
	})

	t.Run("conversion", func(t *testing.T) {
		h := newHarness(t)
		h.converter.err = convert.ErrConversionFailed
		if _, err := h.pipeline.GetPlaybackSource(context.Background(), testAsset(), nil); !errors.Is(err, convert.ErrConversionFailed) {
			t.Fatalf("expected ErrConversionFailed, got %v", err)
		}
	})

	t.Run("context cancelled during download", func(t *testing.T) {
		h := newHarness(t)
		h.downloader.err = context.Canceled
		_, err := h.pipeline.GetPlaybackSource(context.Background(), testAsset(), nil)
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	})
}
