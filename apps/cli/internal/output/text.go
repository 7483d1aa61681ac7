package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/handleui/buildlens/events"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

const (
	dividerWidth   = 60
	detailIndent   = 8
	maxDetailLines = 12
	ellipsis       = "…"
)

type styles struct {
	file    lipgloss.Style
	muted   lipgloss.Style
	err     lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
	ok      lipgloss.Style
	focus   lipgloss.Style
	bold    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		file:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
		err:     r.NewStyle().Foreground(lipgloss.Color("1")),
		warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		info:    r.NewStyle().Foreground(lipgloss.Color("4")),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		focus:   r.NewStyle().Bold(true),
		bold:    r.NewStyle().Bold(true),
	}
}

// Text renders events for people.
type Text struct {
	w     io.Writer
	opts  TextOptions
	style styles
}

// NewText returns a text renderer writing to w.
func NewText(w io.Writer, opts TextOptions) *Text {
	return &Text{w: w, opts: opts, style: newStyles(lipgloss.NewRenderer(w))}
}

func (t *Text) paint(s lipgloss.Style, text string) string {
	if !t.opts.Color {
		return text
	}
	return s.Render(text)
}

// Report prints events grouped by file followed by a summary. withSource
// adds a header naming the log.
func (t *Text) Report(r *Report, withSource bool) {
	if withSource && r.Source != "" {
		t.printf("%s\n", t.paint(t.style.bold, "==> "+r.Source+" <=="))
	}

	grouped, files := events.ByFile(r.Events)
	for _, file := range files {
		if file == "" {
			continue
		}
		evs := grouped[file]
		t.printf("%s %s\n", t.paint(t.style.file, file), t.paint(t.style.muted, "("+counts(events.Summarize(evs))+")"))
		for _, e := range evs {
			t.event(e, r.Snippets[e.ID])
		}
		t.printf("\n")
	}

	if other := grouped[""]; len(other) > 0 {
		t.printf("%s\n", t.paint(t.style.bold, "Other issues:"))
		for _, e := range other {
			t.event(e, nil)
		}
		t.printf("\n")
	}

	t.Summary(r.Summary)
}

// Event prints one event; it implements Stream.
func (t *Text) Event(e events.Event) error {
	t.event(e, nil)
	return nil
}

func (t *Text) event(e events.Event, snippet *events.Snippet) {
	location := ""
	if e.Position != nil {
		location = fmt.Sprintf("%d:%d", e.Position.StartLine+1, e.Position.StartColumn+1)
	}

	headline := e.Headline
	if t.opts.Width > 0 {
		budget := t.opts.Width - detailIndent - runewidth.StringWidth(e.Group) - 2
		headline = runewidth.Truncate(headline, max(budget, 20), ellipsis)
	}

	t.printf("  %s %s %s  %s\n",
		t.paint(t.style.muted, fmt.Sprintf("%-5s", location)),
		t.symbol(e.Kind),
		headline,
		t.paint(t.style.muted, e.Group))

	if e.Description != "" && e.Description != e.Headline {
		t.printf("%s\n", t.detail(e.Description))
	}

	if snippet == nil && t.opts.Snippets {
		snippet = events.ExtractSnippet(e.Position)
	}
	if snippet != nil {
		t.snippet(snippet)
	}

	for _, fix := range e.QuickFixes {
		line := "fix: " + fix.Description
		if fix.Command != "" {
			line += "  " + fix.Command
		}
		t.printf("%s\n", indent.String(t.paint(t.style.muted, line), detailIndent))
	}
}

// detail wraps and indents a description, keeping at most maxDetailLines.
func (t *Text) detail(desc string) string {
	if t.opts.Width > detailIndent {
		desc = wordwrap.String(desc, t.opts.Width-detailIndent)
	}
	lines := strings.Split(desc, "\n")
	if len(lines) > maxDetailLines {
		hidden := len(lines) - maxDetailLines
		lines = append(lines[:maxDetailLines], fmt.Sprintf("%s %d more line%s", ellipsis, hidden, plural(hidden)))
	}
	return indent.String(strings.Join(lines, "\n"), detailIndent)
}

func (t *Text) snippet(s *events.Snippet) {
	last := s.StartLine + len(s.Lines)
	width := len(fmt.Sprint(last))
	for i, line := range s.Lines {
		marker := " "
		text := line
		if i == s.Focus {
			marker = ">"
			text = t.paint(t.style.focus, line)
		}
		gutter := fmt.Sprintf("%s %*d │", marker, width, s.StartLine+i+1)
		t.printf("%s%s %s\n", strings.Repeat(" ", detailIndent-2), t.paint(t.style.muted, gutter), text)
	}
}

// Summary prints the totals line.
func (t *Text) Summary(s events.Stats) {
	if s.Errors == 0 && s.Warnings == 0 {
		t.printf("%s\n", t.paint(t.style.ok, "✓ No problems found"))
		return
	}
	t.printf("%s\n", t.paint(t.style.muted, strings.Repeat("─", dividerWidth)))
	problems := s.Errors + s.Warnings
	text := fmt.Sprintf("✖ Found %d problem%s (%s)", problems, plural(problems), counts(s))
	if s.Files > 0 {
		text += fmt.Sprintf(" across %d file%s", s.Files, plural(s.Files))
	}
	t.printf("%s\n", t.paint(t.style.err, text))
}

func (t *Text) symbol(k events.Kind) string {
	switch k {
	case events.KindError:
		return t.paint(t.style.err, "✖")
	case events.KindWarning:
		return t.paint(t.style.warning, "⚠")
	default:
		return t.paint(t.style.info, "●")
	}
}

func (t *Text) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.w, format, args...)
}

func counts(s events.Stats) string {
	return fmt.Sprintf("%d error%s, %d warning%s", s.Errors, plural(s.Errors), s.Warnings, plural(s.Warnings))
}

// plural returns "s" if count != 1
func plural(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
