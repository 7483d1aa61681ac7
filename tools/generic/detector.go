// Package generic recognizes lines that look like diagnostics no parser in
// the chain understands, so new formats can be found and added, and supplies
// the noise patterns of plain Gradle console output.
package generic

import (
	"regexp"
	"strings"

	"github.com/handleui/buildlens/tools/parser"
)

const (
	// Lines outside these bounds are never candidates.
	minCandidateLength = 10
	maxCandidateLength = 500
)

var (
	// candidatePatterns match lines with strong structural signals of a real
	// diagnostic. Keyword presence alone is not enough.
	candidatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^error:\s+\S`),
		regexp.MustCompile(`(?i)^fatal:\s+\S`),
		regexp.MustCompile(`(?i)^\s*\[(error|fatal|fail)\]\s*:?\s*\S`),
		regexp.MustCompile(`(?i)^(build|compilation|compile)\s+failed\s*$`),
		regexp.MustCompile(`(?i)^\S+\.(kt|kts|java|xml|gradle|toml|dcl|c|cc|cpp|h|hpp):\d+(:\d+)?:?\s`),
		regexp.MustCompile(`(?i)^exception in thread "`),
		regexp.MustCompile(`(?i)^(caused by|execution failed for task)\b`),
		regexp.MustCompile(`(?i)exited\s+with\s+(code\s+)?[1-9]\d*\s*$`),
		regexp.MustCompile(`(?i)^permission\s+denied`),
		regexp.MustCompile(`(?i)^out\s+of\s+memory`),
	}

	// noisePatterns match lines that are never diagnostics even though they
	// may contain diagnostic keywords.
	noisePatterns = []*regexp.Regexp{
		// Task progress
		regexp.MustCompile(`^> Task :\S+(?: (?:UP-TO-DATE|NO-SOURCE|SKIPPED|FROM-CACHE))$`),
		regexp.MustCompile(`^> (?:Configure|Transform|Evaluate) project\b`),
		regexp.MustCompile(`^<-+> \d+% (?:CONFIGURING|EXECUTING|INITIALIZING|WAITING)`),

		// Build success
		regexp.MustCompile(`^BUILD SUCCESSFUL(?: in .+)?$`),

		// Dependency downloads
		regexp.MustCompile(`(?i)^(download|downloading)\s+https?://`),
		regexp.MustCompile(`(?i)^(?:> )?(?:resolving|resolve) (?:dependencies|files)\b`),

		// Daemon and configuration cache status
		regexp.MustCompile(`(?i)^starting (?:a )?gradle daemon`),
		regexp.MustCompile(`(?i)^(?:reusing|calculating|storing) configuration cache`),
		regexp.MustCompile(`(?i)^configuration cache entry (?:stored|reused)`),

		// JVM stack frames belong to the failure that printed them.
		regexp.MustCompile(`^\s+at [\w$.<>]+\(.*\)$`),
		regexp.MustCompile(`^\s+\.\.\. \d+ more$`),

		// Decorative
		regexp.MustCompile(`^[-=_*]{3,}\s*$`),
	}
)

// Detector implements parser.NoisePatternProvider and classifies unclaimed
// lines. It is stateless and safe for concurrent use.
type Detector struct{}

// NewDetector creates a new Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// IsCandidate reports whether a line nobody claimed still looks like a
// diagnostic. This is intentionally strict: such lines are reported as
// unknown patterns and false positives are worse than misses.
func (d *Detector) IsCandidate(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < minCandidateLength || len(trimmed) > maxCandidateLength {
		return false
	}
	for _, p := range noisePatterns {
		if p.MatchString(line) {
			return false
		}
	}
	for _, p := range candidatePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// NoisePatterns implements parser.NoisePatternProvider.
func (d *Detector) NoisePatterns() parser.NoisePatterns {
	return parser.NoisePatterns{
		FastPrefixes: []string{
			"> configure project",
			"> transform ",
			"build successful",
			"starting a gradle daemon",
			"starting gradle daemon",
			"welcome to gradle",
			"daemon will be stopped",
		},
		FastContains: []string{
			"configuration cache entry reused",
		},
		Regex: noisePatterns,
	}
}

var _ parser.NoisePatternProvider = (*Detector)(nil)
