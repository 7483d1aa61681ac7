// Package linesource provides line readers with bounded lookahead.
//
// A parser may read ahead any number of lines and then push some of them
// back; the next reads return exactly the pushed-back lines, in order. The
// reader keeps a window of already-returned lines so push-back never needs
// to re-read the underlying stream.
package linesource

import "errors"

// DefaultMaxHistory bounds the number of already-returned lines kept for
// push-back.
const DefaultMaxHistory = 512

// ErrPushBack is the panic value raised when a caller pushes back more lines
// than it has read within the retained window. It signals a bug in the
// caller, never bad input.
var ErrPushBack = errors.New("linesource: push back exceeds lines read")

// Reader is the contract parsers see.
type Reader interface {
	// ReadLine returns the next line, or false at end of stream.
	ReadLine() (string, bool)
	// PushBack rewinds by n previously returned lines.
	PushBack(n int)
}

// FillFunc pulls more input into the source, usually by reading one global
// line and routing it to its task. It returns false once nothing more will
// arrive.
type FillFunc func() bool

// Source is a per-task line buffer. Lines are appended by the owner and read
// by parsers; when a read finds the buffer drained, Fill is called until a
// line for this source arrives or the stream ends.
//
// Source is not safe for concurrent use.
type Source struct {
	lines      []string
	pos        int // index into lines of the next line to return
	fill       FillFunc
	maxHistory int
}

// New creates a streaming source. fill may be nil for a source that is only
// fed through Append.
func New(fill FillFunc, maxHistory int) *Source {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Source{fill: fill, maxHistory: maxHistory}
}

// FromLines creates a bounded source over a fixed slice. Every line stays
// retained, so push-back may rewind to the first line.
func FromLines(lines []string) *Source {
	buf := make([]string, len(lines))
	copy(buf, lines)
	return &Source{lines: buf, maxHistory: len(buf) + 1}
}

// Append adds a line at the end of the buffer.
func (s *Source) Append(line string) {
	s.lines = append(s.lines, line)
}

// Pending returns the number of buffered lines not yet returned.
func (s *Source) Pending() int {
	return len(s.lines) - s.pos
}

// ReadBuffered returns the next line only if it is already buffered. It
// never calls Fill.
func (s *Source) ReadBuffered() (string, bool) {
	if s.pos >= len(s.lines) {
		return "", false
	}
	return s.next(), true
}

// ReadLine implements Reader.
func (s *Source) ReadLine() (string, bool) {
	for s.pos >= len(s.lines) {
		if s.fill == nil || !s.fill() {
			return "", false
		}
	}
	return s.next(), true
}

// PushBack implements Reader. It panics with ErrPushBack when n is not
// positive or exceeds the lines returned since the window start.
func (s *Source) PushBack(n int) {
	if n < 1 || n > s.pos {
		panic(ErrPushBack)
	}
	s.pos -= n
}

// Remaining returns the unread lines without consuming them.
func (s *Source) Remaining() []string {
	out := make([]string, s.Pending())
	copy(out, s.lines[s.pos:])
	return out
}

func (s *Source) next() string {
	line := s.lines[s.pos]
	s.pos++
	s.trim()
	return line
}

// trim drops lines that fell out of the retained window, compacting once
// the dead prefix reaches maxHistory.
func (s *Source) trim() {
	dead := s.pos - s.maxHistory
	if dead < s.maxHistory {
		return
	}
	n := copy(s.lines, s.lines[dead:])
	clear(s.lines[n:])
	s.lines = s.lines[:n]
	s.pos -= dead
}
