package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"tapedeck/internal/logging"
	"tapedeck/internal/progress"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset     = "\x1b[0m"
	ansiRed       = "\x1b[31m"
	ansiGreen     = "\x1b[32m"
	ansiYellow    = "\x1b[33m"
	ansiBlue      = "\x1b[34m"
	ansiClearLine = "\r\x1b[2K"
)

const statusLabelWidth = 22

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", text)
	if colorize {
		return statusKindColor(kind) + line + ansiReset
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string) string {
	return fmt.Sprintf("== %s ==", strings.TrimSpace(title))
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter renders pipeline events. On a terminal the current line is
// redrawn in place; otherwise one line is printed per 10% step per stage.
type progressPrinter struct {
	out      io.Writer
	tty      bool
	tracker  *progress.Tracker
	sampler  *logging.ProgressSampler
	mu       sync.Mutex
	drawn    bool
	lastKind progress.EventType
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:     out,
		tty:     isTerminal(out),
		tracker: progress.NewTracker(),
		sampler: logging.NewProgressSampler(10),
	}
}

func (p *progressPrinter) handle(event progress.Event) {
	p.tracker.Observe(event)

	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("%-12s %s", p.tracker.Status().State, progress.Describe(event))
	if p.tty {
		if p.drawn && event.Type != p.lastKind {
			fmt.Fprintln(p.out)
		}
		fmt.Fprint(p.out, ansiClearLine+line)
		p.drawn = true
		p.lastKind = event.Type
		return
	}
	percent := -1.0
	if event.Total > 0 {
		percent = event.Percent()
	}
	if p.sampler.ShouldLog(percent, string(event.Type)) {
		fmt.Fprintln(p.out, line)
	}
}

// finish terminates an in-place line so later output starts cleanly.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}
