package javac

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	deprecationID       = "javac.deprecation"
	deprecationPriority = 85

	moreInfoURL = "https://developer.android.com/build/jdks#source-compat"
)

// ltsReleases are the Java releases suggested as replacement levels.
var ltsReleases = []*semver.Version{
	semver.MustParse("8"),
	semver.MustParse("11"),
	semver.MustParse("17"),
	semver.MustParse("21"),
}

// Quick fix identifiers attached to language level events.
const (
	FixSetLanguageLevel = "set.language.level"
	FixProjectStructure = "open.project.structure"
	FixSelectJDK        = "select.gradle.jdk"
	FixMoreInfo         = "open.more.info"
)

// DeprecationParser folds javac's obsolete and removed language level
// options into one event with suggested fixes:
//
//	warning: [options] source value 8 is obsolete and will be removed in a future release
//	warning: [options] target value 8 is obsolete and will be removed in a future release
//	warning: [options] To suppress warnings about obsolete options, use -Xlint:-options.
//
//	error: Source option 7 is no longer supported. Use 8 or later.
//	error: Target option 7 is no longer supported. Use 8 or later.
type DeprecationParser struct{}

// NewDeprecationParser creates a new language level parser.
func NewDeprecationParser() *DeprecationParser {
	return &DeprecationParser{}
}

// ID implements parser.Parser.
func (p *DeprecationParser) ID() string {
	return deprecationID
}

// Priority implements parser.Parser.
func (p *DeprecationParser) Priority() int {
	return deprecationPriority
}

// TryParse implements parser.Parser.
func (p *DeprecationParser) TryParse(line string, src parser.LineReader, _ *parser.Task, sink parser.Consumer) bool {
	if m := obsoletePattern.FindStringSubmatch(line); m != nil {
		consumeSet(src, func(l string) bool {
			return obsoletePattern.MatchString(l) || suppressHintPattern.MatchString(l)
		})
		sink.Accept(languageLevelEvent(events.KindWarning, "deprecated", m[2], nextLTS(m[2], false)))
		return true
	}

	if m := removedPattern.FindStringSubmatch(line); m != nil {
		consumeSet(src, removedPattern.MatchString)
		sink.Accept(languageLevelEvent(events.KindError, "removed", m[2], nextLTS(m[3], true)))
		return true
	}

	return false
}

// consumeSet reads the lines that belong to the same set and pushes back
// the first one that does not.
func consumeSet(src parser.LineReader, member func(string) bool) {
	for {
		next, ok := src.ReadLine()
		if !ok {
			return
		}
		if !member(next) {
			src.PushBack(1)
			return
		}
	}
}

func languageLevelEvent(kind events.Kind, verb, version, suggested string) events.Event {
	headline := fmt.Sprintf("Java compiler has %s support for compiling with source/target compatibility version %s.", verb, version)

	fixes := []events.QuickFix{
		{
			ID:          FixSetLanguageLevel,
			Description: fmt.Sprintf("Change Java language level and jvmTarget to %s in all modules if using Kotlin", suggested),
		},
		{ID: FixProjectStructure, Description: "Pick a different compatibility level..."},
		{ID: FixSelectJDK, Description: "Pick a different JDK to run Gradle..."},
		{ID: FixMoreInfo, Description: "More information...", Command: moreInfoURL},
	}

	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n")
	for _, f := range fixes {
		href := f.ID
		if f.Command != "" {
			href = f.Command
		}
		fmt.Fprintf(&b, "\n<a href=\"%s\">%s</a>", href, f.Description)
	}

	e := events.New(kind, group, headline, b.String(), nil)
	for _, f := range fixes {
		e = e.WithQuickFix(f)
	}
	return e
}

// nextLTS returns the LTS release to suggest for version. With inclusive
// set, version itself qualifies. Unparsable versions suggest the newest
// release.
func nextLTS(version string, inclusive bool) string {
	latest := ltsReleases[len(ltsReleases)-1]
	v, err := semver.NewVersion(javaVersion(version))
	if err != nil {
		return latest.Original()
	}
	for _, lts := range ltsReleases {
		if lts.GreaterThan(v) || inclusive && lts.Equal(v) {
			return lts.Original()
		}
	}
	return latest.Original()
}

// javaVersion maps the legacy "1.N" form to "N".
func javaVersion(v string) string {
	if rest, ok := strings.CutPrefix(v, "1."); ok {
		return rest
	}
	return v
}
