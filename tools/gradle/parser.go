// Package gradle parses Gradle's own failure reporting: the
// "FAILURE: Build failed" block with its "* Where:" and "* What went wrong:"
// sections, XML validation errors and the closing build summary.
package gradle

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "gradle"
	parserPriority = 70

	group    = "Gradle"
	xmlGroup = "XML validation"

	scratchKey = "gradle.where"

	// maxSectionLines caps the lines read for one "What went wrong" section.
	maxSectionLines = 200
)

// Section headers of a failure block.
const (
	HeaderWhere = "* Where:"
	HeaderWhat  = "* What went wrong:"
	HeaderTry   = "* Try:"
)

var (
	// wherePattern matches the location under "* Where:"
	//   Build file '/p/app/build.gradle' line: 9
	//   Settings file '/p/settings.gradle.kts' line: 5
	// Group 1: path
	// Group 2: line
	wherePattern = regexp.MustCompile(`^(?:Build file|Settings file|Script|Initialization script) '(.+)' line: (\d+)$`)

	// fatalXMLPattern matches "[Fatal Error] :5:7: The element type "error" must be terminated..."
	// Group 1: line
	// Group 2: column
	// Group 3: message
	fatalXMLPattern = regexp.MustCompile(`^\[Fatal Error\] :(\d+):(\d+): (.+)$`)

	// summaryPattern matches the closing lines reported as info:
	//   BUILD FAILED
	//   BUILD FAILED in 12s
	//   Total time: 18.303 secs
	summaryPattern = regexp.MustCompile(`^(?:BUILD FAILED(?: in .+)?|Total time: .+)$`)
)

// where is the per-task position from the last "* Where:" section, used
// by the next "* What went wrong:" section of the same block.
type where struct {
	pos *events.FilePosition
}

// Parser implements parser.Parser for Gradle failure output.
type Parser struct{}

// NewParser creates a new Gradle parser.
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

// NoisePatterns implements parser.NoisePatternProvider.
func (p *Parser) NoisePatterns() parser.NoisePatterns {
	return parser.NoisePatterns{
		FastPrefixes: []string{
			"run with --stacktrace",
			"> run with --",
			"run with --scan",
			"> get more help at",
			"get more help at",
			"* get more help at",
			"deprecated gradle features were used",
			"you can use '--warning-mode all'",
			"for more on this, please refer to",
		},
		Regex: []*regexp.Regexp{
			regexp.MustCompile(`^-{5,}$`),
			regexp.MustCompile(`^={5,}$`),
			regexp.MustCompile(`^\d+: Task failed with an exception\.$`),
			regexp.MustCompile(`^\d+ actionable tasks?: `),
		},
	}
}

// TryParse implements parser.Parser.
func (p *Parser) TryParse(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	w := parser.Scratch[where](task, scratchKey)
	trimmed := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(trimmed, "FAILURE: "):
		w.pos = nil
		return true

	case trimmed == HeaderWhere:
		next, ok := src.ReadLine()
		if !ok {
			return true
		}
		m := wherePattern.FindStringSubmatch(strings.TrimSpace(next))
		if m == nil {
			src.PushBack(1)
			return true
		}
		lineNo, _ := strconv.Atoi(m[2])
		w.pos = events.CompilerPosition(task.Resolve(m[1]), lineNo, 1)
		return true

	case trimmed == HeaderWhat:
		section := ReadSection(src)
		if len(section) == 0 {
			return true
		}
		sink.Accept(events.New(events.KindError, group, strings.TrimSpace(section[0]), strings.Join(section, "\n"), w.pos))
		w.pos = nil
		return true

	case trimmed == HeaderTry:
		ReadSection(src)
		return true
	}

	if m := fatalXMLPattern.FindStringSubmatch(trimmed); m != nil {
		sink.Accept(events.New(events.KindError, xmlGroup, m[3], "line "+m[1]+", column "+m[2]+": "+m[3], nil))
		return true
	}

	if summaryPattern.MatchString(trimmed) {
		sink.Accept(events.New(events.KindInfo, group, trimmed, trimmed, nil))
		return true
	}

	return false
}

// ReadSection reads the body of a failure block section: every line up to
// a blank line, the next "* " header or end of input. The blank line is
// consumed; a header is pushed back.
func ReadSection(src parser.LineReader) []string {
	var lines []string
	for len(lines) < maxSectionLines {
		next, ok := src.ReadLine()
		if !ok {
			break
		}
		if strings.TrimSpace(next) == "" {
			break
		}
		if strings.HasPrefix(next, "* ") || summaryPattern.MatchString(next) {
			src.PushBack(1)
			break
		}
		lines = append(lines, next)
	}
	return lines
}
