// Package catalog parses Gradle version catalog failures and navigates them
// to the offending line of the catalog's TOML file.
package catalog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/gradle"
	"github.com/handleui/buildlens/tools/parser"
)

const (
	parserID       = "catalog"
	parserPriority = 80

	group    = "Gradle"
	headline = "Invalid TOML catalog definition."

	exceptionPrefix = "org.gradle.api.InvalidUserDataException: "
	defaultCatalog  = "libs"

	// maxBlockLines caps the lines read for one failure.
	maxBlockLines = 200
)

// Description first lines.
const (
	prefixTOML    = "Invalid TOML catalog definition."
	prefixCatalog = "Invalid catalog definition."
	prefixAlias   = "Invalid alias catalog definition."
)

var (
	// declarationPattern matches single-line declaration failures:
	//   On library declaration 'core' expected to find any of 'group', ... but found unexpected key 'group1'.
	// Group 1: library or plugin
	// Group 2: alias
	// Group 3: unexpected key
	declarationPattern = regexp.MustCompile(`^On (library|plugin) declaration '([^']+)' .* unexpected key '([^']+)'\.$`)

	// problemPattern matches "- Problem: In version catalog libs, <problem>".
	// Group 1: catalog name
	// Group 2: problem
	problemPattern = regexp.MustCompile(`^- Problem: In version catalog ([A-Za-z0-9_]+), (.+)$`)

	// aliasDefinitionPattern matches "- Alias definition 'plugin' is invalid".
	aliasDefinitionPattern = regexp.MustCompile(`^- Alias definition '([^']+)' is invalid$`)

	// aliasKindPattern finds which table an alias belongs to in a reason:
	//   Reason: Id for plugin alias 'plugin' wasn't set.
	aliasKindPattern = regexp.MustCompile(`\b(library|plugin|bundle|version) alias '`)

	// locationPattern matches parse error locations, with or without a file:
	//   Reason: In file '/p/gradle/libs.versions.toml' at line 11, column 19: Unexpected '/'
	//   In file '/p/gradle/libs.versions.toml' at line 15, column 1: ...
	//   Reason: At line 11, column 19: Unexpected '/'
	// Group 1: path (optional)
	// Group 2: line
	// Group 3: column
	locationPattern = regexp.MustCompile(`^(?:Reason: )?(?:In file '([^']+)' at|At) line (\d+), column (\d+):`)

	parsingFailedPattern = regexp.MustCompile(`^parsing failed with \d+ errors?\.$`)
	invalidAliasPattern  = regexp.MustCompile(`^invalid (library|plugin|bundle|version) alias '([^']+)'\.$`)
	versionRefPattern    = regexp.MustCompile(`^version reference '([^']+)' doesn't exist\.$`)
	unknownTopPattern    = regexp.MustCompile(`^unknown top level elements \[([^\]]+)\]$`)
	bundlePattern        = regexp.MustCompile(`^a bundle with name '([^']+)' declares a dependency on '([^']+)' which doesn't exist\.$`)

	// Reasons naming the declaration of a missing version reference.
	dependencyRefPattern = regexp.MustCompile(`^Reason: Dependency '([^':]+):([^']+)' references version`)
	pluginRefPattern     = regexp.MustCompile(`^Reason: Plugin '([^']+)' references version`)
)

// tables maps the alias kinds Gradle reports to catalog tables.
var tables = map[string]string{
	"library": "libraries",
	"plugin":  "plugins",
	"bundle":  "bundles",
	"version": "versions",
}

// Parser implements parser.Parser for version catalog failures. Catalog files
// are read from the task's workspace.
type Parser struct {
	loader *Loader
}

// NewParser creates a new catalog parser.
func NewParser() *Parser {
	return &Parser{loader: NewLoader()}
}

// ID implements parser.Parser.
func (p *Parser) ID() string {
	return parserID
}

// Priority implements parser.Parser.
func (p *Parser) Priority() int {
	return parserPriority
}

// TryParse implements parser.Parser. It claims a "* What went wrong:" section
// only when it reports a catalog problem it understands; anything else is
// pushed back for the Gradle parser.
func (p *Parser) TryParse(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) bool {
	if strings.TrimSpace(line) != gradle.HeaderWhat {
		return false
	}

	b, read := readBlock(src)
	if b == nil {
		src.PushBack(read)
		return false
	}
	positions, ok := p.locate(b, task)
	if !ok {
		src.PushBack(read)
		return false
	}

	desc := b.description()
	for _, pos := range positions {
		sink.Accept(events.New(events.KindError, group, headline, desc, pos))
	}
	return true
}

// block is a catalog failure read from a "What went wrong" section.
type block struct {
	prefix string
	// body holds the problem lines before Gradle repeats them after "> ".
	body []string
	// declaration is set for single-line declaration failures.
	declaration []string
}

func (b *block) description() string {
	if b.declaration != nil {
		return prefixCatalog + "\n" + b.declaration[0]
	}
	body := b.body
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	return strings.Join(append([]string{b.prefix}, body...), "\n")
}

// readBlock reads the exception line and the section body. It returns nil
// when the section is not a catalog failure, with the number of lines read
// either way.
func readBlock(src parser.LineReader) (*block, int) {
	next, ok := src.ReadLine()
	if !ok {
		return nil, 0
	}
	read := 1

	rest, found := strings.CutPrefix(strings.TrimSpace(next), exceptionPrefix)
	if !found {
		return nil, read
	}

	b := &block{}
	switch {
	case rest == "Invalid TOML catalog definition:":
		b.prefix = prefixTOML
	case rest == "Invalid catalog definition:":
		b.prefix = prefixCatalog
	case declarationPattern.MatchString(rest):
		b.prefix = prefixCatalog
		b.declaration = declarationPattern.FindStringSubmatch(rest)
	default:
		return nil, read
	}

	// The body is indented; Gradle then repeats the message after "> ".
	// Both end at the next unindented line.
	repeated := b.declaration != nil
	for read < maxBlockLines {
		next, ok := src.ReadLine()
		if !ok {
			break
		}
		if next != "" && next[0] != ' ' && next[0] != '\t' && !strings.HasPrefix(next, ">") {
			src.PushBack(1)
			break
		}
		read++
		if strings.HasPrefix(next, ">") {
			repeated = true
		}
		if !repeated {
			b.body = append(b.body, next)
		}
	}
	return b, read
}

// locate returns one position per reported location; a nil position means
// the problem is understood but its file could not be found. It returns false
// for problems it does not recognize.
func (p *Parser) locate(b *block, task *parser.Task) ([]*events.FilePosition, bool) {
	if b.declaration != nil {
		kind, alias, key := b.declaration[1], b.declaration[2], b.declaration[3]
		pos := p.inCatalog(task, defaultCatalog, func(f *File) *events.FilePosition {
			if line, col, ok := f.KeyColumn(tables[kind], alias, key); ok {
				return events.Position(f.Path, line, col)
			}
			return nil
		})
		return []*events.FilePosition{pos}, true
	}

	var first int
	for first < len(b.body) && strings.TrimSpace(b.body[first]) == "" {
		first++
	}
	if first == len(b.body) {
		return nil, false
	}
	problem := strings.TrimSpace(b.body[first])
	reasons := trimAll(b.body[first+1:])

	if m := aliasDefinitionPattern.FindStringSubmatch(problem); m != nil {
		b.prefix = prefixAlias
		return []*events.FilePosition{p.aliasPosition(task, defaultCatalog, m[1], reasons)}, true
	}

	m := problemPattern.FindStringSubmatch(problem)
	if m == nil {
		return nil, false
	}
	name, text := m[1], m[2]

	switch {
	case parsingFailedPattern.MatchString(text):
		return p.parseErrorPositions(task, name, reasons), true

	case invalidAliasPattern.MatchString(text):
		m := invalidAliasPattern.FindStringSubmatch(text)
		table, alias := tables[m[1]], m[2]
		return []*events.FilePosition{p.inCatalog(task, name, func(f *File) *events.FilePosition {
			return entryPosition(f, table, alias)
		})}, true

	case versionRefPattern.MatchString(text):
		ref := versionRefPattern.FindStringSubmatch(text)[1]
		return []*events.FilePosition{p.inCatalog(task, name, func(f *File) *events.FilePosition {
			return versionRefPosition(f, ref, reasons)
		})}, true

	case unknownTopPattern.MatchString(strings.TrimSpace(text)):
		elems := unknownTopPattern.FindStringSubmatch(strings.TrimSpace(text))[1]
		elem, _, _ := strings.Cut(elems, ",")
		return []*events.FilePosition{p.inCatalog(task, name, func(f *File) *events.FilePosition {
			if line, ok := f.TableLine(strings.TrimSpace(elem)); ok {
				return events.Position(f.Path, line, 0)
			}
			return nil
		})}, true

	case bundlePattern.MatchString(text):
		m := bundlePattern.FindStringSubmatch(text)
		bundle, dep := m[1], m[2]
		return []*events.FilePosition{p.inCatalog(task, name, func(f *File) *events.FilePosition {
			if line, col, ok := f.ValueColumn("bundles", bundle, dep); ok {
				return events.Position(f.Path, line, col)
			}
			return entryPosition(f, "bundles", bundle)
		})}, true
	}

	return nil, false
}

// parseErrorPositions returns a position per "at line L, column C" reason.
// Locations without a file refer to the named catalog.
func (p *Parser) parseErrorPositions(task *parser.Task, name string, reasons []string) []*events.FilePosition {
	var positions []*events.FilePosition
	for _, r := range reasons {
		m := locationPattern.FindStringSubmatch(r)
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])

		var f *File
		var ok bool
		if m[1] != "" {
			f, ok = p.loader.Load(task.Resolve(m[1]))
		} else {
			f, ok = p.loader.Find(task.WorkspaceRoot(), name)
		}
		if !ok {
			positions = append(positions, nil)
			continue
		}
		positions = append(positions, events.CompilerPosition(f.Path, line, col))
	}
	if len(positions) == 0 {
		positions = append(positions, nil)
	}
	return positions
}

// aliasPosition finds an alias in the table named by the reasons, or in any
// table when they name none.
func (p *Parser) aliasPosition(task *parser.Task, name, alias string, reasons []string) *events.FilePosition {
	candidates := []string{"plugins", "libraries", "bundles", "versions"}
	for _, r := range reasons {
		if m := aliasKindPattern.FindStringSubmatch(r); m != nil {
			candidates = []string{tables[m[1]]}
			break
		}
	}
	return p.inCatalog(task, name, func(f *File) *events.FilePosition {
		for _, table := range candidates {
			if pos := entryPosition(f, table, alias); pos != nil {
				return pos
			}
		}
		return nil
	})
}

// inCatalog applies at to the named catalog of the task's workspace.
func (p *Parser) inCatalog(task *parser.Task, name string, at func(*File) *events.FilePosition) *events.FilePosition {
	f, ok := p.loader.Find(task.WorkspaceRoot(), name)
	if !ok {
		return nil
	}
	return at(f)
}

func versionRefPosition(f *File, ref string, reasons []string) *events.FilePosition {
	for _, r := range reasons {
		if m := dependencyRefPattern.FindStringSubmatch(r); m != nil {
			if alias, ok := f.Library(m[1], m[2], ref); ok {
				return entryPosition(f, "libraries", alias)
			}
		}
		if m := pluginRefPattern.FindStringSubmatch(r); m != nil {
			if alias, ok := f.Plugin(m[1], ref); ok {
				return entryPosition(f, "plugins", alias)
			}
		}
	}
	return nil
}

func entryPosition(f *File, table, alias string) *events.FilePosition {
	if line, ok := f.EntryLine(table, alias); ok {
		return events.Position(f.Path, line, 0)
	}
	return nil
}

func trimAll(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
