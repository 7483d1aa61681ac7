// Package parsertest drives a single parser over text the way the extractor
// drives the chain, for use in parser tests.
package parsertest

import (
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/linesource"
	"github.com/handleui/buildlens/tools/parser"
)

// Result is the outcome of Run.
type Result struct {
	Events []events.Event
	// Rejected holds the lines the parser did not accept, in order.
	Rejected []string
}

// Run offers every line of input to p using one task and returns what p
// produced. Lines are cleaned with parser.CleanLine first. Flush is called
// at the end when p implements parser.Flusher.
func Run(p parser.Parser, task *parser.Task, input string) Result {
	if task == nil {
		task = parser.NewTask("", nil)
	}
	lines := strings.Split(strings.TrimSuffix(input, "\n"), "\n")
	for i, l := range lines {
		lines[i] = parser.CleanLine(l)
	}

	var res Result
	var c events.Collector
	src := linesource.FromLines(lines)
	for {
		line, ok := src.ReadLine()
		if !ok {
			break
		}
		if !p.TryParse(line, src, task, &c) {
			res.Rejected = append(res.Rejected, line)
		}
	}
	if f, ok := p.(parser.Flusher); ok {
		f.Flush(task, &c)
	}
	res.Events = c.Events()
	return res
}

// Events is Run without the rejected lines.
func Events(p parser.Parser, task *parser.Task, input string) []events.Event {
	return Run(p, task, input).Events
}
