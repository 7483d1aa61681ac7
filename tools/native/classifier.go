// Package native groups Clang, CMake, ndk-build and linker output into
// diagnostic messages and turns those messages into events.
//
// The Classifier runs in front of the parser chain for native build tasks.
// It holds back lines until a message is complete, so a diagnostic, its
// include chain, source excerpt, caret line and attached notes reach the
// chain together along with the task context that was current when the
// message began.
package native

import (
	"slices"
	"strings"

	"github.com/handleui/buildlens/tracker"
)

// MaxMessageLines caps the lines of one message. Output beyond the cap
// closes the message.
const MaxMessageLines = 200

// Phase is the classifier state.
type Phase int

const (
	Idle Phase = iota
	Accumulating
)

func (p Phase) String() string {
	if p == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// RawMessage is a group of lines forming one diagnostic.
type RawMessage struct {
	// Command is the compiler invocation printed before the diagnostic, if any.
	Command string
	Lines   []string
	// Context is the tracker state when the message was opened.
	Context tracker.State
}

// All returns the lines to dispatch, starting with the command.
func (m RawMessage) All() []string {
	if m.Command == "" {
		return slices.Clone(m.Lines)
	}
	return append([]string{m.Command}, m.Lines...)
}

// State is the classifier state between lines.
type State struct {
	Phase   Phase
	Open    RawMessage
	Command string // invocation waiting for its diagnostic

	hasDiagnostic bool
}

type lineKind int

const (
	lineOther lineKind = iota
	lineNoise
	lineBlank
	lineMarker
	lineFlush
	lineCommand
	lineInclude
	lineDiagnostic
	lineNote
)

func classify(line string) lineKind {
	switch {
	case strings.TrimSpace(line) == "":
		return lineBlank
	case tracker.IsStructuralMarker(line):
		return lineMarker
	case isFlushLine(line):
		return lineFlush
	}
	if m := diagnosticPattern.FindStringSubmatch(line); m != nil {
		if invalidPath(m[1]) {
			return lineNoise
		}
		if m[4] == "note" {
			return lineNote
		}
		return lineDiagnostic
	}
	if m := includePattern.FindStringSubmatch(line); m != nil {
		if invalidPath(m[1]) {
			return lineNoise
		}
		return lineInclude
	}
	if m := includeFromPattern.FindStringSubmatch(line); m != nil {
		if invalidPath(m[1]) {
			return lineNoise
		}
		return lineInclude
	}
	if toolPattern.MatchString(line) {
		return lineDiagnostic
	}
	if isCompilerCommand(line) {
		return lineCommand
	}
	return lineOther
}

// Next is the pure transition function. ctx is the task context for line;
// it is captured when line opens a message. Next returns the new state and
// the messages completed by line.
func Next(s State, ctx tracker.State, line string) (State, []RawMessage) {
	line = StripPrefix(line)

	switch classify(line) {
	case lineMarker, lineFlush:
		s, out := flush(s)
		s.Command = ""
		return s, out

	case lineBlank:
		// Compilers never print blank lines inside a diagnostic.
		return flush(s)

	case lineCommand:
		s, out := flush(s)
		s.Command = line
		return s, out

	case lineInclude:
		if s.Phase == Accumulating && !s.hasDiagnostic {
			return appendLine(s, line, false), nil
		}
		s, out := flush(s)
		return open(s, ctx, line, false), out

	case lineDiagnostic:
		if s.Phase == Accumulating && !s.hasDiagnostic {
			return appendLine(s, line, true), nil
		}
		s, out := flush(s)
		return open(s, ctx, line, true), out

	case lineNote:
		if s.Phase == Accumulating {
			return appendLine(s, line, true), nil
		}
		return open(s, ctx, line, true), nil

	case lineOther:
		if s.Phase != Accumulating {
			return s, nil
		}
		if len(s.Open.Lines) >= MaxMessageLines {
			return flush(s)
		}
		return appendLine(s, line, false), nil
	}

	// lineNoise
	return s, nil
}

func open(s State, ctx tracker.State, line string, diagnostic bool) State {
	s.Phase = Accumulating
	s.Open = RawMessage{Command: s.Command, Lines: []string{line}, Context: ctx}
	s.Command = ""
	s.hasDiagnostic = diagnostic
	return s
}

func appendLine(s State, line string, diagnostic bool) State {
	s.Open.Lines = append(slices.Clip(s.Open.Lines), line)
	s.hasDiagnostic = s.hasDiagnostic || diagnostic
	return s
}

func flush(s State) (State, []RawMessage) {
	if s.Phase != Accumulating {
		return s, nil
	}
	msg := s.Open
	s.Phase = Idle
	s.Open = RawMessage{}
	s.hasDiagnostic = false
	return s, []RawMessage{msg}
}

// Classifier holds the state of one task's native output.
//
// Thread Safety: Classifier is NOT thread-safe; each task owns one.
type Classifier struct {
	state State
}

// NewClassifier creates an idle classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Consume feeds one line and returns the messages it completed.
func (c *Classifier) Consume(ctx tracker.State, line string) []RawMessage {
	var out []RawMessage
	c.state, out = Next(c.state, ctx, line)
	return out
}

// Flush closes the open message, if any.
func (c *Classifier) Flush() []RawMessage {
	var out []RawMessage
	c.state, out = flush(c.state)
	c.state.Command = ""
	return out
}

// Phase returns the current phase.
func (c *Classifier) Phase() Phase {
	return c.state.Phase
}
