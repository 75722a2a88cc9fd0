package progress

import "sync"

// State is the coarse phase of a fetch.
type State string

const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
)

// Status is what a renderer shows for an in-flight fetch.
type Status struct {
	State    State
	Fraction float64
}

// StatusFor maps a single event to a fetch status. Downloads report
// downloading; conversion and transcription report processing.
func StatusFor(event Event) Status {
	switch event.Type {
	case DownloadProgress:
		return Status{State: StateDownloading, Fraction: event.Fraction()}
	case ConversionProgress, TranscriptionProgress:
		return Status{State: StateProcessing, Fraction: event.Fraction()}
	default:
		return Status{State: StateIdle}
	}
}

// Tracker keeps the latest status for one fetch. It is safe for concurrent use
// so a renderer can poll while stages emit.
type Tracker struct {
	mu     sync.Mutex
	status Status
	last   Event
}

// NewTracker returns a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{status: Status{State: StateIdle}}
}

// Observe records event and returns the resulting status.
func (t *Tracker) Observe(event Event) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = event
	t.status = StatusFor(event)
	return t.status
}

// Func returns a progress callback that records into the tracker and then
// forwards to next.
func (t *Tracker) Func(next Func) Func {
	return func(event Event) {
		t.Observe(event)
		next.Emit(event)
	}
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Last returns the most recent event.
func (t *Tracker) Last() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Reset returns the tracker to idle.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = Status{State: StateIdle}
	t.last = Event{}
}
