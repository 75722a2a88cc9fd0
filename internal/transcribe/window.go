package transcribe

import (
	"fmt"
	"strconv"
	"time"
)

// Window is a half-open span [Start, End) of the source audio.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Width returns the window length.
func (w Window) Width() time.Duration {
	return w.End - w.Start
}

// Valid reports whether the window is non-empty and starts at or after zero.
func (w Window) Valid() bool {
	return w.Start >= 0 && w.End > w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", seconds(w.Start), seconds(w.End))
}

// FirstChunk returns the window of the given width that contains position,
// clamped to total.
func FirstChunk(position, width, total time.Duration) Window {
	if width <= 0 {
		return Window{}
	}
	position = max(position, 0)
	if total > 0 && position >= total {
		position = total - 1
	}
	start := position - position%width
	end := start + width
	if total > 0 {
		end = min(end, total)
	}
	return Window{Start: start, End: end}
}

// NextChunk returns the window that follows w, with the same width and
// clamped to total. The boolean is false once w reaches the end.
func NextChunk(w Window, total time.Duration) (Window, bool) {
	if w.End >= total || !w.Valid() {
		return Window{}, false
	}
	return Window{Start: w.End, End: min(w.End+w.Width(), total)}, true
}

// PreviousChunk returns the window that precedes w, with the same width and
// clamped to zero. The boolean is false once w starts at zero.
func PreviousChunk(w Window) (Window, bool) {
	if w.Start <= 0 || !w.Valid() {
		return Window{}, false
	}
	return Window{Start: max(w.Start-w.Width(), 0), End: w.Start}, true
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
