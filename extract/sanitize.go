package extract

import (
	"regexp"
	"strings"
)

const (
	maxUnknownPatternsToReport  = 10  // Limit unknown pattern reports to prevent Sentry spam
	maxUnknownPatternLineLength = 500 // Truncate long lines in Sentry reports
)

// sanitizer holds a regex pattern and its replacement for sensitive data scrubbing.
type sanitizer struct {
	pattern     *regexp.Regexp
	replacement string
}

// sensitivePatterns are regex patterns that match sensitive data to be redacted.
// SECURITY: These patterns prevent leaking credentials, tokens, paths, and PII to Sentry.
var sensitivePatterns = []sanitizer{
	// API keys and tokens
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret|secret[_-]?key)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{8,}['"]?`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(token|bearer|auth|password|passwd|pwd|secret)\s*[:=]\s*['"]?[A-Za-z0-9_\-\.]{8,}['"]?`), "$1=[REDACTED]"},

	// Signing and publishing credentials passed as Gradle properties
	{regexp.MustCompile(`(?i)-P([\w.]*(?:password|secret|token|key)[\w.]*)=\S+`), "-P$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(ORG_GRADLE_PROJECT_\w+)=\S+`), "$1=[REDACTED]"},

	// Hosted tokens with known formats
	{regexp.MustCompile(`ghp_[A-Za-z0-9]{36,}`), "[GITHUB_TOKEN]"},
	{regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`), "[GITHUB_PAT]"},
	{regexp.MustCompile(`glpat-[A-Za-z0-9\-]{20,}`), "[GITLAB_PAT]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_ACCESS_KEY]"},
	{regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "[GOOGLE_API_KEY]"},

	// JWT tokens
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`), "[JWT_TOKEN]"},

	// Email addresses
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},

	// IP addresses (IPv4)
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP_ADDR]"},

	// Home directory paths (Unix and Windows)
	{regexp.MustCompile(`/home/[^/\s]+`), "/home/[USER]"},
	{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/[USER]"},
	{regexp.MustCompile(`(?i)C:\\Users\\[^\\\s]+`), "C:\\Users\\[USER]"},

	// Long hex strings are hashes or secrets; short ones can be error codes
	{regexp.MustCompile(`[a-fA-F0-9]{32,}`), "[HEX_STRING]"},

	// Base64 that is long enough to be a secret
	{regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`), "[BASE64_STRING]"},

	// URLs with credentials
	{regexp.MustCompile(`https?://[^:/\s]+:[^@/\s]+@`), "https://[CREDENTIALS]@"},
}

// sourceExtensions are kept when paths are replaced so the shape of the
// diagnostic survives.
var sourceExtensions = []string{".kts", ".kt", ".java", ".xml", ".gradle", ".toml", ".dcl", ".cpp", ".c", ".h"}

// UnknownPatternReporter is a callback for reporting unknown diagnostic
// patterns. It lets the CLI inject telemetry such as Sentry without the
// core depending on it. The callback receives sanitized pattern strings.
type UnknownPatternReporter func(patterns []string)

// DefaultUnknownPatternReporter is used by extractors created without
// WithUnknownPatternReporter. Nil disables reporting.
var DefaultUnknownPatternReporter UnknownPatternReporter

// SanitizePatternForTelemetry removes potentially sensitive information from
// a diagnostic line. It preserves the structure (file extensions, line and
// column numbers, keywords) while removing paths, credentials and other PII.
//
// SECURITY: When in doubt, redact more rather than less.
func SanitizePatternForTelemetry(pattern string) string {
	if len(pattern) > maxUnknownPatternLineLength {
		pattern = pattern[:maxUnknownPatternLineLength] + "..."
	}

	result := pattern
	for _, s := range sensitivePatterns {
		result = s.pattern.ReplaceAllString(result, s.replacement)
	}

	for _, ext := range sourceExtensions {
		result = replacePaths(result, ext)
	}
	return result
}

// replacePaths replaces every path ending in ext with "[path]"+ext. A path
// runs back from the extension to the previous space, tab or quote.
func replacePaths(s, ext string) string {
	idx := 0
	for idx < len(s) {
		extIdx := strings.Index(s[idx:], ext)
		if extIdx == -1 {
			break
		}
		extIdx += idx
		end := extIdx + len(ext)
		// ".c" must not match the start of ".cpp", ".kt" not ".kts"
		if end < len(s) && isWordByte(s[end]) {
			idx = end
			continue
		}
		pathStart := extIdx
		for pathStart > 0 && !strings.ContainsRune(" \t\"'`", rune(s[pathStart-1])) {
			pathStart--
		}
		if pathStart == extIdx || strings.HasPrefix(s[pathStart:], "[path]") {
			idx = end
			continue
		}
		s = s[:pathStart] + "[path]" + ext + s[end:]
		idx = pathStart + len("[path]") + len(ext)
	}
	return s
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
