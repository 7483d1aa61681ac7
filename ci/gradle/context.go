// Package gradle attributes interleaved Gradle log lines to tasks. Lines are
// tagged "taskId|line"; untagged lines belong to ci.DefaultTask.
package gradle

import (
	"regexp"
	"strings"

	"github.com/handleui/buildlens/ci"
)

const (
	// DefaultSeparator separates the task tag from the line.
	DefaultSeparator = "|"

	// maxTagLength bounds what is taken for a tag.
	maxTagLength = 256
)

var (
	// legacyRecordPattern matches plugin records whose own syntax uses the
	// separator: "WARNING|:project:app|text". These are never tags.
	legacyRecordPattern = regexp.MustCompile(`^(?:ERROR|WARNING|INFO)\|:`)

	// consoleProgressPattern matches Gradle's rich console status lines:
	//   <=====--------> 40% EXECUTING [3s]
	//   > IDLE
	//   > :app:compileDebugKotlin > Resolve files of configuration
	consoleProgressPattern = regexp.MustCompile(`^(?:<[=\-]*> \d+% \w+|> IDLE$|> :\S+ > )`)
)

// isConsoleNoise returns true if the line is console progress output that
// should be skipped.
func isConsoleNoise(line string) bool {
	// Fast path: only lines starting with '<' or '>' can match
	if line == "" || (line[0] != '<' && line[0] != '>') {
		return false
	}
	return consoleProgressPattern.MatchString(line)
}

// ContextParser splits task tags off Gradle log lines and filters console
// progress output.
type ContextParser struct {
	separator string
}

// NewContextParser creates a Gradle context parser using DefaultSeparator.
func NewContextParser() *ContextParser {
	return &ContextParser{separator: DefaultSeparator}
}

// NewContextParserWithSeparator creates a Gradle context parser for tags
// ending in sep. An empty sep selects DefaultSeparator.
func NewContextParserWithSeparator(sep string) *ContextParser {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &ContextParser{separator: sep}
}

// ParseLine parses a line of tagged Gradle output.
// It handles the format: taskId|tool output here
//
// Returns:
//   - context: the task the line belongs to
//   - cleanedLine: the line with the tag and separator removed; the rest of
//     the line, including leading whitespace, is kept verbatim
//   - skip: true if the line is console progress output and should be skipped
func (p *ContextParser) ParseLine(line string) (context *ci.LineContext, cleanedLine string, skip bool) {
	context = &ci.LineContext{Task: ci.DefaultTask}
	cleanedLine = line

	if i := strings.Index(line, p.separator); i >= 0 && i <= maxTagLength && !p.isLegacyRecord(line) {
		tag := line[:i]
		if !strings.ContainsAny(tag, " \t") {
			context.Task = tag
			context.Tagged = true
			cleanedLine = line[i+len(p.separator):]
		}
	}

	if isConsoleNoise(cleanedLine) {
		context.IsNoise = true
		return context, "", true
	}
	return context, cleanedLine, false
}

func (p *ContextParser) isLegacyRecord(line string) bool {
	return p.separator == DefaultSeparator && legacyRecordPattern.MatchString(line)
}

// Ensure ContextParser implements ci.ContextParser
var _ ci.ContextParser = (*ContextParser)(nil)
