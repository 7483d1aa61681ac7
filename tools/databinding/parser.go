// Package databinding parses errors reported by the Android data binding
// compiler, in both its JSON and legacy text encodings.
package databinding

import (
	"regexp"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/tidwall/gjson"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "databinding"
	parserPriority = 90

	group = "Data Binding compiler"

	jsonPrefix   = "[databinding] "
	legacyMarker = "****/ data binding error ****"
)

var (
	// legacyPattern matches one legacy record, possibly embedded in a longer line:
	//   ****/ data binding error ****msg:Cannot find the setter file:/p/main.xml loc:12:20 - 12:35 ****\ data binding error ****
	// Group 1: message
	// Group 2: file (optional)
	// Group 3-6: start line, start column, end line, end column (optional, 0-based)
	legacyPattern = regexp.MustCompile(`\*\*\*\*/ data binding error \*\*\*\*msg:(.*?)(?: file:(.*?))?(?: loc:(\d+):(\d+) - (\d+):(\d+))? ?\*\*\*\*\\`)

	// summaryPattern matches the exception announcing the records that follow:
	//   e: [kapt] An exception occurred: android.databinding.tool.util.LoggedErrorException: Found data binding error(s):
	//   Found data binding errors.
	summaryPattern = regexp.MustCompile(`Found data binding error(?:\(s\)|s)[:.]`)
)

// Parser implements parser.Parser for the data binding compiler.
type Parser struct{}

// NewParser creates a new data binding parser.
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

// TryParse implements parser.Parser. A summary line is accepted along with
// any records on it; the records following it are parsed line by line.
func (p *Parser) TryParse(line string, _ parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	trimmed := strings.TrimSpace(line)

	if rest, ok := strings.CutPrefix(trimmed, jsonPrefix); ok {
		e, ok := parseJSON(rest, task)
		if !ok {
			return false
		}
		sink.Accept(e)
		return true
	}

	records := legacyPattern.FindAllStringSubmatch(trimmed, -1)
	for _, m := range records {
		sink.Accept(legacyEvent(m, task))
	}
	return len(records) > 0 || summaryPattern.MatchString(trimmed)
}

// parseJSON reads {"msg":"...","file":"...","pos":[{"line0":1,"col0":2,"line1":1,"col1":9}]}.
func parseJSON(raw string, task *parser.Task) (events.Event, bool) {
	if !gjson.Valid(raw) {
		return events.Event{}, false
	}
	rec := gjson.Parse(raw)
	if !rec.IsObject() {
		return events.Event{}, false
	}
	msg := rec.Get("msg").String()
	if msg == "" {
		return events.Event{}, false
	}

	var pos *events.FilePosition
	if file := rec.Get("file").String(); file != "" {
		first := rec.Get("pos.0")
		pos = span(task.Resolve(file),
			intField(first, "line0"), intField(first, "col0"),
			intField(first, "line1"), intField(first, "col1"))
	}
	return events.New(events.KindError, group, msg, description(msg, pos), pos), true
}

func legacyEvent(m []string, task *parser.Task) events.Event {
	msg := strings.TrimSpace(m[1])
	var pos *events.FilePosition
	if file := strings.TrimSpace(m[2]); file != "" {
		pos = events.Position(task.Resolve(file), 0, 0)
		if m[3] != "" {
			l0, _ := strconv.Atoi(m[3])
			c0, _ := strconv.Atoi(m[4])
			l1, _ := strconv.Atoi(m[5])
			c1, _ := strconv.Atoi(m[6])
			pos = span(pos.Path, l0, c0, l1, c1)
		}
	}
	return events.New(events.KindError, group, msg, description(msg, pos), pos)
}

// span builds a 0-based range, collapsing an end before the start.
func span(path string, l0, c0, l1, c1 int) *events.FilePosition {
	pos := events.Position(path, l0, c0)
	if l1 > pos.StartLine || l1 == pos.StartLine && c1 >= pos.StartColumn {
		pos.EndLine, pos.EndColumn = l1, c1
	}
	return pos
}

// intField reads a non-negative int, treating missing, negative or
// overflowing values as 0.
func intField(obj gjson.Result, key string) int {
	n, err := safecast.Conv[int](obj.Get(key).Int())
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func description(msg string, pos *events.FilePosition) string {
	if pos == nil {
		return msg
	}
	return msg + "\n" + pos.Path + ":" + strconv.Itoa(pos.StartLine+1) + ":" + strconv.Itoa(pos.StartColumn+1)
}
