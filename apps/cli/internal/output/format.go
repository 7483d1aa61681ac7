// Package output renders classified build events for the terminal and for
// machines.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/extract"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Format selects a renderer.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatCompact Format = "compact"
	FormatMsgpack Format = "msgpack"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatJSON, FormatCompact, FormatMsgpack}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("invalid output format %q: must be one of %s", s, strings.Join(names, ", "))
}

// Report is the result of classifying one log.
type Report struct {
	Source   string                     `json:"source,omitempty"`
	Events   []events.Event             `json:"events"`
	Summary  events.Stats               `json:"summary"`
	Stats    extract.Stats              `json:"stats"`
	Snippets map[string]*events.Snippet `json:"snippets,omitempty"`
}

// NewReport summarizes evs.
func NewReport(source string, evs []events.Event, stats extract.Stats) *Report {
	if evs == nil {
		evs = []events.Event{}
	}
	return &Report{
		Source:  source,
		Events:  evs,
		Summary: events.Summarize(evs),
		Stats:   stats,
	}
}

// TextOptions controls the text renderer.
type TextOptions struct {
	Color bool
	// Width wraps descriptions; 0 disables wrapping.
	Width int
	// Snippets prints source context for positioned events.
	Snippets bool
}

const (
	defaultWidth = 100
	maxWidth     = 160
)

// DetectText derives options from the destination: colors and wrapping
// only when f is a terminal.
func DetectText(f *os.File) TextOptions {
	if f == nil || !isatty.IsTerminal(f.Fd()) {
		return TextOptions{}
	}
	width := defaultWidth
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		width = min(w, maxWidth)
	}
	return TextOptions{Color: os.Getenv("NO_COLOR") == "", Width: width}
}

// Write renders reports in the given format.
func Write(w io.Writer, f Format, reports []*Report, opts TextOptions) error {
	switch f {
	case FormatText:
		t := NewText(w, opts)
		for _, r := range reports {
			t.Report(r, len(reports) > 1)
		}
		return nil
	case FormatJSON:
		if len(reports) == 1 {
			return WriteJSON(w, reports[0])
		}
		return WriteJSON(w, reports)
	case FormatCompact:
		views := make([]*events.CompactView, len(reports))
		for i, r := range reports {
			views[i] = events.Compact(r.Events)
		}
		if len(views) == 1 {
			return WriteJSON(w, views[0])
		}
		return WriteJSON(w, views)
	case FormatMsgpack:
		if len(reports) == 1 {
			return WriteMsgpack(w, reports[0])
		}
		return WriteMsgpack(w, reports)
	}
	return fmt.Errorf("unsupported format %q", f)
}
