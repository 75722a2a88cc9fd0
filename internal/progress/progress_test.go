package progress

import (
	"testing"
	"time"
)

func TestEventFraction(t *testing.T) {
	tests := []struct {
		event Event
		want  float64
	}{
		{Event{Loaded: 50, Total: 200}, 0.25},
		{Event{Loaded: 300, Total: 200}, 1},
		{Event{Loaded: 10}, 0},
		{Event{Loaded: -1, Total: 10}, 0},
	}
	for _, tt := range tests {
		if got := tt.event.Fraction(); got != tt.want {
			t.Fatalf("Fraction(%+v) = %v, want %v", tt.event, got, tt.want)
		}
	}
}

func TestNilFuncEmitIsSafe(t *testing.T) {
	var f Func
	f.Emit(Event{Type: DownloadProgress})
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(Event{Type: DownloadProgress, Loaded: 1, Total: 4}); got.State != StateDownloading || got.Fraction != 0.25 {
		t.Fatalf("download status = %+v", got)
	}
	if got := StatusFor(Event{Type: ConversionProgress, Loaded: 4, Total: 4}); got.State != StateProcessing || got.Fraction != 1 {
		t.Fatalf("conversion status = %+v", got)
	}
	if got := StatusFor(Event{Type: TranscriptionProgress}); got.State != StateProcessing {
		t.Fatalf("transcription status = %+v", got)
	}
	if got := StatusFor(Event{Type: "other"}); got.State != StateIdle {
		t.Fatalf("unknown status = %+v", got)
	}
}

func TestTrackerForwardsAndRecords(t *testing.T) {
	tracker := NewTracker()
	if tracker.Status().State != StateIdle {
		t.Fatalf("initial state = %s", tracker.Status().State)
	}
	var forwarded []Event
	f := tracker.Func(func(e Event) { forwarded = append(forwarded, e) })
	f(Event{Type: DownloadProgress, Loaded: 5, Total: 10})
	f(Event{Type: ConversionProgress, Loaded: 1, Total: 10})

	if len(forwarded) != 2 {
		t.Fatalf("forwarded %d events", len(forwarded))
	}
	if got := tracker.Status(); got.State != StateProcessing || got.Fraction != 0.1 {
		t.Fatalf("status = %+v", got)
	}
	if tracker.Last().Type != ConversionProgress {
		t.Fatalf("last = %+v", tracker.Last())
	}
	tracker.Reset()
	if tracker.Status().State != StateIdle {
		t.Fatal("reset did not return to idle")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Type: DownloadProgress, Loaded: 1024, Total: 2048}, "Download 50.0% (1.0 KiB / 2.0 KiB)"},
		{Event{Type: TranscriptionProgress, Loaded: 1, Total: 4}, "Transcribe 25.0%"},
		{Event{Type: ConversionProgress, Loaded: 512}, "Convert 512 B"},
		{Event{}, "Progress"},
	}
	for _, tt := range tests {
		if got := Describe(tt.event); got != tt.want {
			t.Fatalf("Describe(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, ""},
		{45 * time.Second, "45s"},
		{62 * time.Minute, "1h2m"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.d); got != tt.want {
			t.Fatalf("FormatETA(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
