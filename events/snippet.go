package events

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Snippet extraction constants
const (
	DefaultContextLines = 3           // ±3 lines around the position
	MaxLineLength       = 500         // Truncate lines longer than this
	MaxSnippetSize      = 2048        // Max total snippet size in bytes
	MaxFileSize         = 1024 * 1024 // Skip files larger than 1MB
	ScannerBufferSize   = 256 * 1024
)

// Snippet is source text around a position.
type Snippet struct {
	Lines     []string `json:"lines"`
	StartLine int      `json:"startLine"` // 0-based line of Lines[0]
	Focus     int      `json:"focus"`     // index into Lines of the reported line
	Language  string   `json:"language"`
}

// sensitiveFilePatterns are file names that are never read for snippets.
var sensitiveFilePatterns = []string{
	".env",
	"local.properties",
	"gradle.properties",
	"keystore.properties",
	"google-services.json",
	"credentials.json",
	"secrets.json",
	"secrets.yaml",
	"secrets.yml",
	".netrc",
	"id_rsa",
	"id_ed25519",
	"id_ecdsa",
	"htpasswd",
	"shadow",
	"passwd",
}

var extensionToLanguage = map[string]string{
	".java":   "java",
	".kt":     "kotlin",
	".kts":    "kotlin",
	".gradle": "groovy",
	".groovy": "groovy",
	".dcl":    "kotlin",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".cc":     "cpp",
	".cxx":    "cpp",
	".hpp":    "cpp",
	".hh":     "cpp",
	".mk":     "make",
	".cmake":  "cmake",
	".xml":    "xml",
	".toml":   "toml",
	".json":   "json",
	".pro":    "proguard",
}

// ExtractSnippet reads source context around pos. It returns nil when the
// file cannot be read safely: missing, a symlink, a directory, too large,
// binary, or matching a sensitive file name.
func ExtractSnippet(pos *FilePosition) *Snippet {
	if pos == nil {
		return nil
	}
	return extractSnippet(pos.Path, pos.StartLine, DefaultContextLines)
}

func extractSnippet(path string, line, contextLines int) *Snippet {
	if path == "" || line < 0 || contextLines < 0 {
		return nil
	}

	cache, ok := readWindow(path, line-contextLines, line+contextLines)
	if !ok {
		return nil
	}
	return cutSnippet(cache, line, contextLines, detectLanguage(path))
}

// SnippetsFor extracts snippets for every positioned event, keyed by event
// ID. Each file is read once. Relative paths are joined with basePath and
// discarded if they escape it.
func SnippetsFor(evs []Event, basePath string) map[string]*Snippet {
	var cleanBase string
	if basePath != "" {
		abs, err := filepath.Abs(filepath.Clean(basePath))
		if err != nil {
			return nil
		}
		cleanBase = abs
	}

	byPath := make(map[string][]Event)
	for _, e := range evs {
		if e.Position == nil || e.Position.Path == "" {
			continue
		}
		p := e.Position.Path
		if cleanBase != "" && !filepath.IsAbs(p) {
			p = filepath.Clean(filepath.Join(cleanBase, p))
			if !strings.HasPrefix(p, cleanBase+string(filepath.Separator)) {
				continue
			}
		}
		byPath[p] = append(byPath[p], e)
	}

	out := make(map[string]*Snippet)
	for p, group := range byPath {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Position.StartLine < group[j].Position.StartLine
		})
		first := group[0].Position.StartLine - DefaultContextLines
		last := group[len(group)-1].Position.StartLine + DefaultContextLines
		cache, ok := readWindow(p, first, last)
		if !ok {
			continue
		}
		lang := detectLanguage(p)
		for _, e := range group {
			if s := cutSnippet(cache, e.Position.StartLine, DefaultContextLines, lang); s != nil {
				out[e.ID] = s
			}
		}
	}
	return out
}

// readWindow returns lines [from, to] (0-based, inclusive) of path.
func readWindow(path string, from, to int) (map[int]string, bool) {
	cleanPath := filepath.Clean(path)
	if isSensitiveFile(cleanPath) {
		return nil, false
	}

	info, err := os.Lstat(cleanPath)
	if err != nil || info.Mode()&os.ModeSymlink != 0 || info.IsDir() || info.Size() > MaxFileSize {
		return nil, false
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, false
	}
	defer file.Close()

	opened, err := file.Stat()
	if err != nil || !os.SameFile(info, opened) {
		return nil, false
	}

	from = max(from, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, ScannerBufferSize), ScannerBufferSize)

	cache := make(map[int]string)
	for n := 0; scanner.Scan(); n++ {
		if n < from {
			continue
		}
		if n > to {
			break
		}
		text := scanner.Text()
		if isBinaryLine(text) {
			return nil, false
		}
		if len(text) > MaxLineLength {
			text = truncateUTF8(text, MaxLineLength) + "..."
		}
		cache[n] = text
	}
	if scanner.Err() != nil {
		return nil, false
	}
	return cache, true
}

func cutSnippet(cache map[int]string, line, contextLines int, lang string) *Snippet {
	start := max(0, line-contextLines)
	var lines []string
	size := 0
	first := -1
	for l := start; l <= line+contextLines; l++ {
		text, ok := cache[l]
		if !ok {
			continue
		}
		size += len(text) + 1
		if size > MaxSnippetSize {
			break
		}
		if first < 0 {
			first = l
		}
		lines = append(lines, text)
	}
	if len(lines) == 0 {
		return nil
	}
	focus := min(max(line-first, 0), len(lines)-1)
	return &Snippet{Lines: lines, StartLine: first, Focus: focus, Language: lang}
}

func isSensitiveFile(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range sensitiveFilePatterns {
		if base == pattern {
			return true
		}
	}
	if strings.HasPrefix(base, ".env") {
		return true
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".pem", ".key", ".p12", ".pfx", ".jks", ".keystore":
		return true
	}
	return false
}

func detectLanguage(path string) string {
	if lang, ok := extensionToLanguage[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// isBinaryLine checks for null bytes or a high share of control characters.
func isBinaryLine(line string) bool {
	if line == "" {
		return false
	}
	if strings.ContainsRune(line, 0) {
		return true
	}
	nonPrintable, total := 0, 0
	for _, r := range line {
		total++
		if r < 32 && r != '\t' && r != '\r' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(total) > 0.1
}

// truncateUTF8 truncates s to maxBytes without splitting a rune.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
