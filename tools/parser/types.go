package parser

import (
	"regexp"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/linesource"
	"github.com/handleui/buildlens/tracker"
)

// LineReader is the per-task line source a parser reads lookahead from.
type LineReader = linesource.Reader

// Consumer receives completed events.
type Consumer interface {
	Accept(e events.Event)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(e events.Event)

// Accept implements Consumer.
func (f ConsumerFunc) Accept(e events.Event) { f(e) }

// Parser recognizes one output grammar.
//
// TryParse is offered the current line of a task plus the task's reader,
// positioned just after that line. A parser that accepts consumes the line
// and any lookahead it needs and delivers zero or more events to sink. A
// parser that rejects must push back every line it read so the reader is
// positioned as if it had never been called.
//
// Parsers keep no per-task state in their own fields; anything that must
// survive between calls lives in Task.Scratch. One Parser value may
// therefore serve every task of a stream.
type Parser interface {
	// ID returns the unique identifier for this parser (e.g., "native", "javac")
	ID() string

	// Priority returns the order in the chain. Higher values are tried
	// first.
	Priority() int

	TryParse(line string, src LineReader, task *Task, sink Consumer) bool
}

// Flusher is implemented by parsers that hold back events between calls.
// Flush is called once per task at end of stream.
type Flusher interface {
	Flush(task *Task, sink Consumer)
}

// NoisePatternProvider is an optional interface that parsers can implement
// to expose their noise patterns for registry-level optimization.
// The registry collects patterns from all registered parsers to build
// one noise checker instead of asking each parser.
type NoisePatternProvider interface {
	NoisePatterns() NoisePatterns
}

// NoisePatterns contains categorized noise detection patterns for optimization.
// Fast string checks are performed before expensive regex matching.
type NoisePatterns struct {
	// FastPrefixes are common prefixes that indicate noise (checked first, case-insensitive).
	FastPrefixes []string

	// FastContains are common substrings that indicate noise (case-insensitive).
	FastContains []string

	// Regex patterns for noise detection (checked last, most expensive).
	Regex []*regexp.Regexp
}

// Task is the parse context of one build task. Two tasks never share a
// Task value.
//
// Thread Safety: Task is NOT thread-safe. The driver dispatches all lines
// of a stream from a single goroutine.
type Task struct {
	// ID is the opaque task identifier from the input tags.
	ID string

	// State is the live tracker state of the task.
	State tracker.State

	// Workspace resolves paths when no directory marker has been seen.
	// May be nil.
	Workspace tracker.Workspace

	snapshot *tracker.State
	scratch  map[string]any
}

// NewTask creates a task seeded from its identifier.
func NewTask(id string, ws tracker.Workspace) *Task {
	return &Task{
		ID:        id,
		State:     tracker.FromTaskID(id),
		Workspace: ws,
	}
}

// Context returns the tracker state lines should be read against: the
// snapshot of the classified message being dispatched, or the live state.
func (t *Task) Context() tracker.State {
	if t.snapshot != nil {
		return *t.snapshot
	}
	return t.State
}

// Classified reports whether the current line belongs to a message grouped
// by the native output classifier.
func (t *Task) Classified() bool {
	return t.snapshot != nil
}

// BeginMessage makes ctx the task context until EndMessage.
func (t *Task) BeginMessage(ctx tracker.State) {
	t.snapshot = &ctx
}

// EndMessage restores the live context.
func (t *Task) EndMessage() {
	t.snapshot = nil
}

// Resolve anchors p at the task's current directory.
func (t *Task) Resolve(p string) string {
	return t.Context().Resolve(p, t.Workspace)
}

// WorkspaceRoot returns the workspace root, or "" when unknown.
func (t *Task) WorkspaceRoot() string {
	if t.Workspace == nil {
		return ""
	}
	return t.Workspace.Root()
}

// Scratch returns the per-task value stored under key, creating a zero T on
// first use. Keys are owned by the parser that defines them.
func Scratch[T any](t *Task, key string) *T {
	if t.scratch == nil {
		t.scratch = make(map[string]any)
	}
	if v, ok := t.scratch[key].(*T); ok {
		return v
	}
	v := new(T)
	t.scratch[key] = v
	return v
}
