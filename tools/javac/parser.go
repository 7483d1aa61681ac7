// Package javac parses Java compiler output: per-file diagnostics with their
// symbol, location and caret lines, and the option warnings javac prints
// when a build targets an obsolete or removed language level.
package javac

import (
	"strconv"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "javac"
	parserPriority = 55

	group = "Java compiler"

	// maxLookahead bounds how far a header looks for its caret line.
	maxLookahead = 8
)

// Parser implements parser.Parser for javac file diagnostics. Only .java
// paths are accepted, so other tools' "path:line: error:" output is left to
// the parsers that own it.
type Parser struct{}

// NewParser creates a new javac parser.
func NewParser() *Parser {
	return &Parser{}
}

// ID implements parser.Parser.
func (p *Parser) ID() string {
	return parserID
}

// Priority implements parser.Parser.
func (p *Parser) Priority() int {
	return parserPriority
}

// TryParse implements parser.Parser.
func (p *Parser) TryParse(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	m := headerPattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}

	extra := readDetails(src)
	used := usedDetails(extra)
	if unused := len(extra) - used; unused > 0 {
		src.PushBack(unused)
	}
	details := extra[:used]

	kind := events.KindError
	if m[4] == "warning" {
		kind = events.KindWarning
	}

	headline := m[5]
	for _, d := range details {
		if sm := symbolPattern.FindStringSubmatch(d); sm != nil {
			headline += " " + strings.TrimSpace(sm[1])
			break
		}
	}

	lineNo, _ := strconv.Atoi(m[2])
	path := task.Resolve(m[1])
	var pos *events.FilePosition
	switch {
	case m[3] != "":
		col, _ := strconv.Atoi(m[3])
		pos = events.CompilerPosition(path, lineNo, col)
	default:
		pos = events.CompilerPosition(path, lineNo, 1)
		if col, ok := caretColumn(details); ok {
			pos = events.Position(path, lineNo-1, col)
		}
	}

	description := strings.Join(append([]string{line}, details...), "\n")
	sink.Accept(events.New(kind, group, headline, description, pos))
	return true
}

// readDetails reads lines after a header up to and including the caret
// line and the symbol and location lines that may follow it. It stops
// early at the next header, a closing count or end of input.
func readDetails(src parser.LineReader) []string {
	var extra []string
	caret := false
	for len(extra) < maxLookahead {
		next, ok := src.ReadLine()
		if !ok {
			break
		}
		extra = append(extra, next)
		if caret {
			if !isDetail(next) {
				break
			}
			continue
		}
		if caretPattern.MatchString(next) {
			caret = true
			continue
		}
		if headerPattern.MatchString(next) || countPattern.MatchString(next) {
			break
		}
	}
	return extra
}

// usedDetails returns how many leading lines of extra belong to the
// diagnostic: everything through the caret plus the symbol and location
// lines after it, or without a caret only the symbol and location lines
// directly after the header.
func usedDetails(extra []string) int {
	start := 0
	for i, l := range extra {
		if caretPattern.MatchString(l) {
			start = i + 1
			break
		}
	}
	n := start
	for _, l := range extra[start:] {
		if !isDetail(l) {
			break
		}
		n++
	}
	return n
}

func isDetail(l string) bool {
	return symbolPattern.MatchString(l) || locationPattern.MatchString(l)
}

func caretColumn(details []string) (int, bool) {
	for _, l := range details {
		if caretPattern.MatchString(l) {
			return strings.IndexByte(l, '^'), true
		}
	}
	return 0, false
}
