// Package quickfix attaches an "ask for help" action to error events.
//
// The wrapper only reshapes events: it accepts and rejects exactly what the
// wrapped parser does. Acting on the fix is left to a Runner supplied by the
// host.
package quickfix

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
	"github.com/handleui/buildlens/tracker"
)

// AskForHelpID identifies the fix added to ERROR events.
const AskForHelpID = "ask.for.help"

// ErrNoFix is returned by Ask for events that carry no ask-for-help fix.
var ErrNoFix = errors.New("quickfix: event has no ask-for-help fix")

// Toggle reports whether the wrapper is active. It is consulted for every
// event, so a settings change applies to the rest of the stream.
type Toggle interface {
	Enabled() bool
}

// ToggleFunc adapts a function to Toggle.
type ToggleFunc func() bool

// Enabled implements Toggle.
func (f ToggleFunc) Enabled() bool { return f() }

// Static is a Toggle with a fixed value.
type Static bool

// Enabled implements Toggle.
func (s Static) Enabled() bool { return bool(s) }

// Runner receives the prompt of an ask-for-help fix. What it does with the
// prompt is up to the host; nothing flows back into classification.
type Runner interface {
	Ask(ctx context.Context, prompt string) error
}

// Wrapper decorates the events of a parser. It also forwards Flush and
// NoisePatterns so wrapping never hides optional behavior.
type Wrapper struct {
	parser.Parser
	toggle Toggle
}

// Wrap returns p decorated with ask-for-help fixes while toggle is enabled.
// A nil toggle is always enabled.
func Wrap(p parser.Parser, toggle Toggle) *Wrapper {
	if toggle == nil {
		toggle = Static(true)
	}
	return &Wrapper{Parser: p, toggle: toggle}
}

// Wrapping returns a function for tools.Registry.Wrap.
func Wrapping(toggle Toggle) func(parser.Parser) parser.Parser {
	return func(p parser.Parser) parser.Parser {
		return Wrap(p, toggle)
	}
}

// Unwrap returns the wrapped parser.
func (w *Wrapper) Unwrap() parser.Parser {
	return w.Parser
}

// TryParse implements parser.Parser.
func (w *Wrapper) TryParse(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	return w.Parser.TryParse(line, src, task, w.decorate(task, sink))
}

// Flush implements parser.Flusher.
func (w *Wrapper) Flush(task *parser.Task, sink parser.Consumer) {
	if f, ok := w.Parser.(parser.Flusher); ok {
		f.Flush(task, w.decorate(task, sink))
	}
}

// NoisePatterns implements parser.NoisePatternProvider.
func (w *Wrapper) NoisePatterns() parser.NoisePatterns {
	if np, ok := w.Parser.(parser.NoisePatternProvider); ok {
		return np.NoisePatterns()
	}
	return parser.NoisePatterns{}
}

func (w *Wrapper) decorate(task *parser.Task, sink parser.Consumer) parser.Consumer {
	return parser.ConsumerFunc(func(e events.Event) {
		if e.Kind == events.KindError && w.toggle.Enabled() {
			e = Decorate(e, task.ID)
		}
		sink.Accept(e)
	})
}

// Decorate returns e with one ask-for-help fix appended. Events that are not
// errors, or already carry the fix, are returned unchanged.
func Decorate(e events.Event, taskID string) events.Event {
	if e.Kind != events.KindError || HasAskForHelp(e) {
		return e
	}
	command := Command(taskID)
	return e.WithQuickFix(events.QuickFix{
		ID:          AskForHelpID,
		Description: "Ask for help with this error",
		Prompt:      Prompt(e, command),
		Command:     command,
	})
}

// HasAskForHelp reports whether e carries the ask-for-help fix.
func HasAskForHelp(e events.Event) bool {
	for _, f := range e.QuickFixes {
		if f.ID == AskForHelpID {
			return true
		}
	}
	return false
}

// Command returns the Gradle invocation that reruns the task, or "" when the
// id carries no task path.
func Command(taskID string) string {
	s := tracker.FromTaskID(taskID)
	if s.Task == "" {
		return ""
	}
	return "./gradlew " + s.Task
}

// Prompt builds the question handed to a Runner.
func Prompt(e events.Event, command string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I'm getting the following error while building my project. The error is: %s\n", e.Headline)
	b.WriteString("```\n")
	b.WriteString(strings.TrimRight(e.Description, "\n"))
	b.WriteString("\n```\n")
	if command != "" {
		fmt.Fprintf(&b, "The build was started with `%s`.\n", command)
	}
	if path := e.File(); path != "" {
		fmt.Fprintf(&b, "The error is reported in %s at line %d.\n", path, e.Position.StartLine+1)
	}
	b.WriteString("How do I fix this?")
	return b.String()
}

// Ask hands the ask-for-help prompt of e to r.
func Ask(ctx context.Context, r Runner, e events.Event) error {
	for _, f := range e.QuickFixes {
		if f.ID == AskForHelpID {
			return r.Ask(ctx, f.Prompt)
		}
	}
	return ErrNoFix
}

var (
	_ parser.Parser               = (*Wrapper)(nil)
	_ parser.Flusher              = (*Wrapper)(nil)
	_ parser.NoisePatternProvider = (*Wrapper)(nil)
)
