package progress

// EventType names the stage that produced an event.
type EventType string

const (
	DownloadProgress      EventType = "download-progress"
	ConversionProgress    EventType = "conversion-progress"
	TranscriptionProgress EventType = "transcription-progress"
)

// Event reports Loaded out of Total units of work. Total is zero when the
// amount of work is unknown.
type Event struct {
	Type   EventType `json:"type"`
	Loaded int64     `json:"loaded"`
	Total  int64     `json:"total"`
}

// Fraction returns Loaded/Total clamped to [0, 1], or 0 when Total is unknown.
func (e Event) Fraction() float64 {
	if e.Total <= 0 || e.Loaded <= 0 {
		return 0
	}
	if e.Loaded >= e.Total {
		return 1
	}
	return float64(e.Loaded) / float64(e.Total)
}

// Percent returns Fraction as a percentage.
func (e Event) Percent() float64 {
	return e.Fraction() * 100
}

// Func receives progress events. A nil Func discards them.
type Func func(Event)

// Emit calls f when it is non-nil.
func (f Func) Emit(event Event) {
	if f != nil {
		f(event)
	}
}
