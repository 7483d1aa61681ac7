package events

import (
	"slices"

	"github.com/google/uuid"
)

// Kind is the severity of a diagnostic event.
type Kind string

const (
	KindInfo    Kind = "INFO"
	KindWarning Kind = "WARNING"
	KindError   Kind = "ERROR"
)

// rank orders kinds so callers can compare severities.
func (k Kind) rank() int {
	switch k {
	case KindError:
		return 2
	case KindWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether k is as severe as other.
func (k Kind) AtLeast(other Kind) bool {
	return k.rank() >= other.rank()
}

// FilePosition is a 0-based range inside a file.
type FilePosition struct {
	Path        string `json:"path" msgpack:"path"`
	StartLine   int    `json:"startLine" msgpack:"startLine"`
	StartColumn int    `json:"startColumn" msgpack:"startColumn"`
	EndLine     int    `json:"endLine" msgpack:"endLine"`
	EndColumn   int    `json:"endColumn" msgpack:"endColumn"`
}

// Position builds a single-point position from 0-based coordinates.
// Negative coordinates are clamped to 0.
func Position(path string, line, column int) *FilePosition {
	line = max(line, 0)
	column = max(column, 0)
	return &FilePosition{
		Path:        path,
		StartLine:   line,
		StartColumn: column,
		EndLine:     line,
		EndColumn:   column,
	}
}

// CompilerPosition translates 1-based compiler coordinates. A column of 0
// means the compiler did not report one.
func CompilerPosition(path string, line, column int) *FilePosition {
	return Position(path, line-1, column-1)
}

// QuickFix is an identifier plus the text needed to act on it. Actions
// themselves are carried out by the host.
type QuickFix struct {
	ID          string `json:"id" msgpack:"id"`
	Description string `json:"description" msgpack:"description"`
	Prompt      string `json:"prompt,omitempty" msgpack:"prompt,omitempty"`
	Command     string `json:"command,omitempty" msgpack:"command,omitempty"`
}

// Event is a structured diagnostic. Events are values: once delivered to a
// consumer they are never modified, and derived events are copies.
type Event struct {
	ID          string        `json:"id" msgpack:"id"`
	Task        string        `json:"task,omitempty" msgpack:"task,omitempty"`
	Kind        Kind          `json:"kind" msgpack:"kind"`
	Group       string        `json:"group" msgpack:"group"`
	Headline    string        `json:"headline" msgpack:"headline"`
	Description string        `json:"description" msgpack:"description"`
	Position    *FilePosition `json:"position,omitempty" msgpack:"position,omitempty"`
	QuickFixes  []QuickFix    `json:"quickFixes,omitempty" msgpack:"quickFixes,omitempty"`
}

// New creates an event with a fresh identifier. An empty description
// falls back to the headline.
func New(kind Kind, group, headline, description string, pos *FilePosition) Event {
	if description == "" {
		description = headline
	}
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		Group:       group,
		Headline:    headline,
		Description: description,
		Position:    pos,
	}
}

// WithQuickFix returns a copy of e carrying one more quick fix.
func (e Event) WithQuickFix(fix QuickFix) Event {
	e.QuickFixes = append(slices.Clone(e.QuickFixes), fix)
	return e
}

// WithTask returns a copy of e attributed to a task.
func (e Event) WithTask(task string) Event {
	e.Task = task
	return e
}

// File returns the event's path, or "" when it has no position.
func (e Event) File() string {
	if e.Position == nil {
		return ""
	}
	return e.Position.Path
}
