// Package plain is the last grammar of the chain. It handles bare
// severity-prefixed lines, the pipe-separated records of old Android
// plugins and the manifest merger's two-line reports.
package plain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "plain"
	parserPriority = 50

	compilerGroup = "Compiler"
	pluginGroup   = "Android Gradle Plugin"
	manifestGroup = "Manifest merger"

	// manifestSummary closes a failed merge and repeats nothing new.
	manifestSummary = "Validation failed, exiting"
)

var (
	// severityPattern matches "warning: [options] bootstrap class path not set"
	// Group 1: severity
	// Group 2: message
	severityPattern = regexp.MustCompile(`^(warning|error): (.+)$`)

	// recordPattern matches legacy plugin records: "WARNING|:project:app1|A minor warning"
	// Group 1: severity
	// Group 2: project path
	// Group 3: message, which may itself contain pipes
	recordPattern = regexp.MustCompile(`^(ERROR|WARNING|INFO)\|(:[^|]*)\|(.*)$`)

	// manifestPattern matches the header of a manifest merger report:
	//   /p/AndroidManifest.xml:50:4 Warning:
	//   C:\p\AndroidManifest.xml:62:4 Error:
	// Group 1: path
	// Group 2: line
	// Group 3: column
	// Group 4: severity
	manifestPattern = regexp.MustCompile(`^([A-Za-z]:\\[^:]*|[^:\s][^:]*):(\d+):(\d+) (Warning|Error):$`)
)

// Parser implements parser.Parser for plain output.
type Parser struct{}

// NewParser creates a new plain output parser.
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
	if m := recordPattern.FindStringSubmatch(line); m != nil {
		kind := recordKind(m[1])
		sink.Accept(events.New(kind, pluginGroup+" "+m[2], m[3], m[3]+"\n"+m[2], nil))
		return true
	}

	if m := manifestPattern.FindStringSubmatch(line); m != nil {
		return p.parseManifest(m, src, task, sink)
	}

	if m := severityPattern.FindStringSubmatch(line); m != nil {
		kind := events.KindWarning
		if m[1] == "error" {
			kind = events.KindError
		}
		sink.Accept(events.New(kind, compilerGroup, m[2], line, nil))
		return true
	}

	return false
}

// parseManifest reads the tab-indented message that follows a manifest
// merger header.
func (p *Parser) parseManifest(m []string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	next, ok := src.ReadLine()
	if !ok {
		return false
	}
	if !strings.HasPrefix(next, "\t") {
		src.PushBack(1)
		return false
	}
	message := strings.TrimSpace(next)
	if message == manifestSummary {
		return true
	}

	lineNo, _ := strconv.Atoi(m[2])
	col, _ := strconv.Atoi(m[3])
	kind := events.KindWarning
	if m[4] == "Error" {
		kind = events.KindError
	}
	pos := events.CompilerPosition(task.Resolve(m[1]), lineNo, col)
	sink.Accept(events.New(kind, manifestGroup, message, message, pos))
	return true
}

func recordKind(severity string) events.Kind {
	switch severity {
	case "ERROR":
		return events.KindError
	case "WARNING":
		return events.KindWarning
	default:
		return events.KindInfo
	}
}
