// Package ci defines how build log lines are attributed to the build tasks
// that printed them.
package ci

// DefaultTask is the task of lines that carry no tag.
const DefaultTask = ""

// LineContext contains the attribution extracted from a log line.
type LineContext struct {
	Task    string // Task identifier from the line tag, DefaultTask when untagged
	Tagged  bool   // True if the line carried a tag
	IsNoise bool   // True if line should be skipped (console progress output)
}

// ContextParser extracts task attribution from log lines.
// Different log sources implement this interface to parse their tagging
// format.
type ContextParser interface {
	// ParseLine extracts context from a log line.
	// Returns the context, the line with the tag removed, and whether to skip.
	// If skip is true, the line should be ignored.
	ParseLine(line string) (ctx *LineContext, cleanLine string, skip bool)
}
