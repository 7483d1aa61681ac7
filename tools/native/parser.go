package native

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "native"
	parserPriority = 100

	groupPrefix = "Clang Compiler"
)

// Parser turns classified native messages into events. It only accepts
// lines dispatched from a classified message, so compiler output echoed
// inside a Gradle failure block is left to the other parsers.
type Parser struct{}

// NewParser creates a new native output parser.
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

// diagnostic is the primary diagnostic of a message.
type diagnostic struct {
	kind    events.Kind
	message string
	pos     *events.FilePosition
	tool    string
}

// TryParse implements parser.Parser.
func (p *Parser) TryParse(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	if !task.Classified() {
		return false
	}

	lines := []string{line}
	for {
		next, ok := src.ReadLine()
		if !ok {
			break
		}
		lines = append(lines, next)
	}
	read := len(lines) - 1

	var command string
	if isCompilerCommand(lines[0]) {
		command = lines[0]
		lines = lines[1:]
	}

	details := make([]string, 0, len(lines))
	var primary *diagnostic
	for _, l := range lines {
		rewritten, d := p.readLine(l, task)
		details = append(details, rewritten)
		if d != nil && (primary == nil || primary.kind == events.KindInfo && d.kind != events.KindInfo) {
			primary = d
		}
	}
	if primary == nil {
		if read > 0 {
			src.PushBack(read)
		}
		return false
	}

	description := strings.TrimRight(strings.Join(details, "\n"), "\n ")
	if command != "" {
		description = command + "\n\n" + description
	}
	if m := ldOpenFailurePattern.FindStringSubmatch(primary.tool); m != nil {
		description += "\n\n" + fmt.Sprintf(ldOpenFailureHint, m[1])
	}

	ctx := task.Context()
	headline := primary.message
	if ctx.ABI != "" {
		headline += " [" + ctx.ABI + "]"
	}
	group := groupPrefix
	if g := ctx.Group(); g != "" {
		group += " " + g
	}

	sink.Accept(events.New(primary.kind, group, headline, description, primary.pos))
	return true
}

// readLine returns l with any path resolved against the task directory,
// plus the diagnostic it carries.
func (p *Parser) readLine(l string, task *parser.Task) (string, *diagnostic) {
	if m := diagnosticPattern.FindStringSubmatchIndex(l); m != nil {
		path := task.Resolve(l[m[2]:m[3]])
		lineNo, _ := strconv.Atoi(l[m[4]:m[5]])
		col := 0
		if m[6] >= 0 {
			col, _ = strconv.Atoi(l[m[6]:m[7]])
		}
		d := &diagnostic{
			kind:    severityKind(l[m[8]:m[9]]),
			message: l[m[10]:m[11]],
			pos:     events.CompilerPosition(path, lineNo, col),
		}
		return l[:m[2]] + path + l[m[3]:], d
	}
	for _, pattern := range []*regexp.Regexp{includePattern, includeFromPattern} {
		if m := pattern.FindStringSubmatchIndex(l); m != nil {
			return l[:m[2]] + task.Resolve(l[m[2]:m[3]]) + l[m[3]:], nil
		}
	}
	if m := toolPattern.FindStringSubmatch(l); m != nil {
		return l, &diagnostic{
			kind:    severityKind(m[2]),
			message: l,
			tool:    l,
		}
	}
	return l, nil
}

func severityKind(severity string) events.Kind {
	switch severity {
	case "warning":
		return events.KindWarning
	case "note":
		return events.KindInfo
	default:
		return events.KindError
	}
}
