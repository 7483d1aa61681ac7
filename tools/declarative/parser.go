// Package declarative parses Gradle failures to interpret declarative DSL
// (build.gradle.dcl) files.
package declarative

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/gradle"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "declarative"
	parserPriority = 78

	group = "Declarative DSL"

	// maxEntries caps the entries read for one failure.
	maxEntries = 200
)

var (
	// headerPattern matches the failure header, also when Gradle repeats it
	// after "> ":
	//   Failed to interpret the declarative DSL file '/p/app/build.gradle.dcl':
	// Group 1: path
	headerPattern = regexp.MustCompile(`^(?:> )?Failed to interpret the declarative DSL file '([^']+)':$`)

	// categoryPattern matches "Failures in resolution:" and "Failures in parsing:".
	categoryPattern = regexp.MustCompile(`^Failures in (\w+):$`)

	// entryPattern matches "5:5: unresolved reference 'foo'".
	// Group 1: line
	// Group 2: column
	// Group 3: message
	entryPattern = regexp.MustCompile(`^(\d+):(\d+): (.+)$`)
)

// Parser implements parser.Parser for declarative DSL failures.
type Parser struct{}

// NewParser creates a new declarative DSL parser.
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

// TryParse implements parser.Parser. The header is accepted on its own or
// as the first line of a "* What went wrong:" section.
func (p *Parser) TryParse(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	trimmed := strings.TrimSpace(line)
	header := trimmed
	if trimmed == gradle.HeaderWhat {
		next, ok := src.ReadLine()
		if !ok {
			return false
		}
		if !headerPattern.MatchString(strings.TrimSpace(next)) {
			src.PushBack(1)
			return false
		}
		header = strings.TrimSpace(next)
	}

	m := headerPattern.FindStringSubmatch(header)
	if m == nil {
		return false
	}
	file := task.Resolve(m[1])
	header = strings.TrimPrefix(header, "> ")

	n := 0
	category := ""
	for n < maxEntries {
		next, ok := src.ReadLine()
		if !ok {
			break
		}
		entry := strings.TrimSpace(next)
		if entry == "" || next[0] != ' ' && next[0] != '\t' {
			src.PushBack(1)
			break
		}
		if c := categoryPattern.FindStringSubmatch(entry); c != nil {
			category = entry
			continue
		}
		e := entryPattern.FindStringSubmatch(entry)
		if e == nil {
			src.PushBack(1)
			break
		}
		lineNo, _ := strconv.Atoi(e[1])
		col, _ := strconv.Atoi(e[2])
		desc := header + "\n" + category + "\n" + entry
		if category == "" {
			desc = header + "\n" + entry
		}
		sink.Accept(events.New(events.KindError, group, e[3], desc, events.CompilerPosition(file, lineNo, col)))
		n++
	}

	if n == 0 {
		sink.Accept(events.New(events.KindError, group, header, header, events.Position(file, 0, 0)))
	}
	return true
}
