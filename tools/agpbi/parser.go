// Package agpbi parses the structured messages the Android Gradle Plugin
// prints as "AGPBI: {json}" lines.
//
// A record looks like:
//
//	AGPBI: {"kind":"error","text":"Android resource linking failed","sources":[{"file":"/p/res/layout/main.xml","position":{"startLine":5,"startColumn":4}}],"original":"...","tool":"AAPT"}
//
// Older plugins use "sourcePath" and "position" at the top level. Positions
// are already 0-based.
//
// The same failure is often printed again as plain compiler text right after
// the record. The parser remembers the record's "original" text per task and
// consumes those repeated lines without emitting a second event.
package agpbi

import (
	"strings"

	"fortio.org/safecast"
	"github.com/tidwall/gjson"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "agpbi"
	parserPriority = 95

	recordPrefix = "AGPBI: "
	scratchKey   = "agpbi.original"

	defaultGroup = "Android Gradle Plugin"
)

// toolGroups maps the "tool" field to a group label.
var toolGroups = map[string]string{
	"AAPT":     "Android resource compilation",
	"AAPT2":    "Android resource compilation",
	"D8":       "D8",
	"R8":       "R8",
	"DEX":      "Dex",
	"JAVAC":    "Java compiler",
	"MANIFEST": "Manifest merger",
}

// original is the per-task tail of the last record's "original" text still
// expected on following lines.
type original struct {
	pending []string
}

// Parser implements parser.Parser for AGPBI records.
type Parser struct{}

// NewParser creates a new AGPBI parser.
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
	orig := parser.Scratch[original](task, scratchKey)

	payload, ok := strings.CutPrefix(strings.TrimSpace(line), recordPrefix)
	if !ok {
		return orig.consume(line)
	}
	if !gjson.Valid(payload) {
		return false
	}
	record := gjson.Parse(payload)
	if !record.IsObject() {
		return false
	}
	text := record.Get("text").String()
	if text == "" {
		return false
	}

	headline, _, _ := strings.Cut(text, "\n")
	group := defaultGroup
	if tool := strings.ToUpper(record.Get("tool").String()); tool != "" {
		group = tool
		if label, found := toolGroups[tool]; found {
			group = label
		}
	}

	positions := sourcePositions(record, task)
	if len(positions) == 0 {
		positions = []*events.FilePosition{nil}
	}
	kind := recordKind(record.Get("kind").String())
	for _, pos := range positions {
		sink.Accept(events.New(kind, group, headline, text, pos))
	}

	orig.remember(record.Get("original").String())
	return true
}

// sourcePositions returns one position per source file of record.
func sourcePositions(record gjson.Result, task *parser.Task) []*events.FilePosition {
	var out []*events.FilePosition
	for _, src := range record.Get("sources").Array() {
		if pos := position(src.Get("file").String(), src.Get("position"), task); pos != nil {
			out = append(out, pos)
		}
	}
	if len(out) > 0 {
		return out
	}
	if pos := position(record.Get("sourcePath").String(), record.Get("position"), task); pos != nil {
		out = append(out, pos)
	}
	return out
}

func position(file string, pos gjson.Result, task *parser.Task) *events.FilePosition {
	if file == "" {
		return nil
	}
	startLine := intField(pos, "startLine")
	startCol := intField(pos, "startColumn")
	p := events.Position(task.Resolve(file), startLine, startCol)

	if endLine := intField(pos, "endLine"); endLine >= startLine && pos.Get("endLine").Exists() {
		p.EndLine = endLine
		p.EndColumn = max(intField(pos, "endColumn"), 0)
		if p.EndLine == p.StartLine && p.EndColumn < p.StartColumn {
			p.EndColumn = p.StartColumn
		}
	}
	return p
}

// intField reads a non-negative int, treating absent, negative and
// out-of-range values as 0.
func intField(obj gjson.Result, key string) int {
	v := obj.Get(key)
	if !v.Exists() {
		return 0
	}
	n, err := safecast.Conv[int](v.Int())
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func recordKind(kind string) events.Kind {
	switch strings.ToUpper(kind) {
	case "ERROR":
		return events.KindError
	case "WARNING":
		return events.KindWarning
	default:
		return events.KindInfo
	}
}

func (o *original) remember(text string) {
	o.pending = o.pending[:0]
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			o.pending = append(o.pending, l)
		}
	}
}

// consume accepts line when it is the next expected line of the last
// record's original text. Any other line ends the expectation.
func (o *original) consume(line string) bool {
	if len(o.pending) == 0 {
		return false
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if trimmed != o.pending[0] {
		o.pending = nil
		return false
	}
	o.pending = o.pending[1:]
	return true
}
