package parser

import (
	"regexp"
	"strings"
)

// ansiEscapePattern matches ANSI escape sequences for colored terminal output.
// Pattern: ESC[ followed by numeric parameters separated by semicolons, ending with 'm'.
var ansiEscapePattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// StripANSI removes ANSI escape sequences from a string.
// Gradle prints colored output with --console=rich and when attached to a
// terminal.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiEscapePattern.ReplaceAllString(s, "")
}

// CleanLine strips color codes and a trailing carriage return.
func CleanLine(s string) string {
	return strings.TrimRight(StripANSI(s), "\r")
}
