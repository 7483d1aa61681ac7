package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/handleui/buildlens/tools/agpbi"
	"github.com/handleui/buildlens/tools/catalog"
	"github.com/handleui/buildlens/tools/databinding"
	"github.com/handleui/buildlens/tools/declarative"
	"github.com/handleui/buildlens/tools/generic"
	"github.com/handleui/buildlens/tools/gradle"
	"github.com/handleui/buildlens/tools/javac"
	"github.com/handleui/buildlens/tools/kotlin"
	"github.com/handleui/buildlens/tools/native"
	"github.com/handleui/buildlens/tools/parser"
	"github.com/handleui/buildlens/tools/plain"
)

// Registry is the parser chain. It keeps parsers in priority order and
// offers each line to them until one accepts.
type Registry struct {
	parsers  []parser.Parser          // Sorted by priority (descending)
	byID     map[string]parser.Parser // Quick lookup by parser ID
	disabled map[string]bool
	extra    []parser.NoisePatternProvider
	mu       sync.RWMutex // Protects concurrent access

	// Noise detection consolidated from all parsers and extra providers
	noiseChecker *noiseChecker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:      make([]parser.Parser, 0),
		byID:         make(map[string]parser.Parser),
		disabled:     make(map[string]bool),
		noiseChecker: &noiseChecker{},
	}
}

// Register adds a parser to the chain. Parsers are kept sorted by priority,
// highest first; parsers with equal priority keep registration order.
// Registering an ID twice panics.
func (r *Registry) Register(p parser.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID()]; exists {
		panic(fmt.Sprintf("tools: parser %q registered twice", p.ID()))
	}
	r.parsers = append(r.parsers, p)
	r.byID[p.ID()] = p

	sort.SliceStable(r.parsers, func(i, j int) bool {
		return r.parsers[i].Priority() > r.parsers[j].Priority()
	})
	r.rebuildNoise()
}

// AddNoise adds noise patterns from a provider that is not a parser.
func (r *Registry) AddNoise(p parser.NoisePatternProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extra = append(r.extra, p)
	r.rebuildNoise()
}

// Disable removes the parser with the given ID from the chain. It reports
// whether such a parser is registered.
func (r *Registry) Disable(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return false
	}
	r.disabled[id] = true
	r.rebuildNoise()
	return true
}

// Get returns a parser by ID, or nil if not found.
func (r *Registry) Get(id string) parser.Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Parsers returns the enabled parsers in priority order.
func (r *Registry) Parsers() []parser.Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled()
}

func (r *Registry) enabled() []parser.Parser {
	result := make([]parser.Parser, 0, len(r.parsers))
	for _, p := range r.parsers {
		if !r.disabled[p.ID()] {
			result = append(result, p)
		}
	}
	return result
}

// Dispatch offers line to each enabled parser in priority order and returns
// the ID of the one that accepted it. A parser that rejects must leave src
// where it found it; one that does not is a bug and Dispatch panics.
func (r *Registry) Dispatch(line string, src parser.LineReader, task *parser.Task, sink parser.Consumer) (string, bool) {
	r.mu.RLock()
	chain := r.enabled()
	r.mu.RUnlock()

	guard := &guardedReader{LineReader: src}
	for _, p := range chain {
		guard.net = 0
		if p.TryParse(line, guard, task, sink) {
			return p.ID(), true
		}
		if guard.net != 0 {
			panic(fmt.Sprintf("tools: parser %q rejected a line leaving %d lines consumed", p.ID(), guard.net))
		}
	}
	return "", false
}

// Flush gives every parser holding per-task state a chance to emit it.
func (r *Registry) Flush(task *parser.Task, sink parser.Consumer) {
	for _, p := range r.Parsers() {
		if f, ok := p.(parser.Flusher); ok {
			f.Flush(task, sink)
		}
	}
}

// Wrap replaces every registered parser with wrap(parser). The wrapper must
// keep the parser's ID and priority.
func (r *Registry) Wrap(wrap func(parser.Parser) parser.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.parsers {
		w := wrap(p)
		r.parsers[i] = w
		r.byID[w.ID()] = w
	}
	r.rebuildNoise()
}

// guardedReader counts the lines a parser consumed net of push-backs.
type guardedReader struct {
	parser.LineReader
	net int
}

func (g *guardedReader) ReadLine() (string, bool) {
	line, ok := g.LineReader.ReadLine()
	if ok {
		g.net++
	}
	return line, ok
}

func (g *guardedReader) PushBack(n int) {
	g.LineReader.PushBack(n)
	g.net -= n
}

// IsNoise reports whether line matches a noise pattern of any enabled
// parser or extra provider. Noise never reaches the chain.
func (r *Registry) IsNoise(line string) bool {
	r.mu.RLock()
	checker := r.noiseChecker
	r.mu.RUnlock()

	return checker.IsNoise(line)
}

// DefaultRegistry returns a registry with all built-in parsers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(native.NewParser())
	r.Register(agpbi.NewParser())
	r.Register(databinding.NewParser())
	r.Register(javac.NewDeprecationParser())
	r.Register(catalog.NewParser())
	r.Register(declarative.NewParser())
	r.Register(gradle.NewParser())
	r.Register(kotlin.NewParser())
	r.Register(javac.NewParser())
	r.Register(plain.NewParser())

	r.AddNoise(generic.NewDetector())

	return r
}

// rebuildNoise must be called with mu held.
func (r *Registry) rebuildNoise() {
	var providers []parser.NoisePatternProvider
	for _, p := range r.enabled() {
		if provider, ok := p.(parser.NoisePatternProvider); ok {
			providers = append(providers, provider)
		}
	}
	providers = append(providers, r.extra...)
	r.noiseChecker = newNoiseChecker(providers)
}

// noiseChecker consolidates the noise patterns of all providers and applies
// cheap checks before regular expressions.
type noiseChecker struct {
	// fastPrefixes are lowercase prefixes that indicate noise (checked first)
	fastPrefixes []string

	// fastContains are lowercase substrings that indicate noise
	fastContains []string

	// regexPatterns are consolidated regex patterns from all providers
	regexPatterns []*regexp.Regexp
}

func newNoiseChecker(providers []parser.NoisePatternProvider) *noiseChecker {
	nc := &noiseChecker{}

	prefixSet := make(map[string]struct{})
	containsSet := make(map[string]struct{})
	regexSet := make(map[string]struct{})

	for _, provider := range providers {
		patterns := provider.NoisePatterns()

		for _, prefix := range patterns.FastPrefixes {
			lower := strings.ToLower(prefix)
			if _, exists := prefixSet[lower]; !exists {
				prefixSet[lower] = struct{}{}
				nc.fastPrefixes = append(nc.fastPrefixes, lower)
			}
		}

		for _, contains := range patterns.FastContains {
			lower := strings.ToLower(contains)
			if _, exists := containsSet[lower]; !exists {
				containsSet[lower] = struct{}{}
				nc.fastContains = append(nc.fastContains, lower)
			}
		}

		// Deduplicate by string representation
		for _, re := range patterns.Regex {
			if _, exists := regexSet[re.String()]; !exists {
				regexSet[re.String()] = struct{}{}
				nc.regexPatterns = append(nc.regexPatterns, re)
			}
		}
	}

	return nc
}

// IsNoise checks a cleaned line against the consolidated patterns. Blank
// lines are noise.
func (nc *noiseChecker) IsNoise(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}

	lowerTrimmed := strings.ToLower(trimmed)
	for _, prefix := range nc.fastPrefixes {
		if strings.HasPrefix(lowerTrimmed, prefix) {
			return true
		}
	}

	for _, substr := range nc.fastContains {
		if strings.Contains(lowerTrimmed, substr) {
			return true
		}
	}

	for _, pattern := range nc.regexPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}

	return false
}
