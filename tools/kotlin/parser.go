// Package kotlin parses kotlinc diagnostics as printed by the Kotlin Gradle
// plugin.
package kotlin

import (
	"net/url"
	"regexp"
	"strconv"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "kotlin"
	parserPriority = 60

	group = "Kotlin compiler"
)

var (
	// uriPattern matches the current format:
	//   e: file:///src/Main.kt:12:5 Unresolved reference 'foo'.
	// Group 1: severity letter
	// Group 2: file URI path
	// Group 3: line
	// Group 4: column (optional)
	// Group 5: message
	uriPattern = regexp.MustCompile(`^([ew]): file://(/?[^:]*(?::[^:]*)??):(\d+)(?::(\d+))? (.+)$`)

	// legacyPattern matches the pre-1.9 format:
	//   e: /src/Main.kt: (12, 5): Unresolved reference: foo
	// Group 1: severity letter
	// Group 2: path
	// Group 3: line
	// Group 4: column
	// Group 5: message
	legacyPattern = regexp.MustCompile(`^([ew]): ([A-Za-z]:[\\/][^:]*|[^:\s][^:]*): \((\d+), (\d+)\): (.+)$`)

	// bareMessagePattern matches diagnostics with no file:
	//   e: java.lang.OutOfMemoryError: Java heap space
	// Group 1: severity letter
	// Group 2: message
	bareMessagePattern = regexp.MustCompile(`^([ew]): (.+)$`)

	windowsURIPath = regexp.MustCompile(`^/[A-Za-z]:/`)
)

// Parser implements parser.Parser for kotlinc.
type Parser struct{}

// NewParser creates a new Kotlin parser.
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
func (p *Parser) TryParse(line string, _ parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	var sev, file, lineStr, colStr, message string
	if m := uriPattern.FindStringSubmatch(line); m != nil {
		sev, file, lineStr, colStr, message = m[1], uriPath(m[2]), m[3], m[4], m[5]
	} else if m := legacyPattern.FindStringSubmatch(line); m != nil {
		sev, file, lineStr, colStr, message = m[1], m[2], m[3], m[4], m[5]
	} else if m := bareMessagePattern.FindStringSubmatch(line); m != nil {
		sev, message = m[1], m[2]
	} else {
		return false
	}

	kind := events.KindError
	if sev == "w" {
		kind = events.KindWarning
	}

	var pos *events.FilePosition
	if file != "" {
		lineNo, _ := strconv.Atoi(lineStr)
		col := 1
		if colStr != "" {
			col, _ = strconv.Atoi(colStr)
		}
		pos = events.CompilerPosition(task.Resolve(file), lineNo, col)
	}

	sink.Accept(events.New(kind, group, message, line, pos))
	return true
}

// uriPath turns the path of a file URI into a local path.
func uriPath(p string) string {
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if windowsURIPath.MatchString(p) {
		p = p[1:]
	}
	return p
}
