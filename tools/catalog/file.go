package catalog

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/patrickmn/go-cache"
)

const (
	cacheTTL     = time.Minute
	cacheCleanup = 5 * time.Minute
)

var (
	// tableHeaderPattern matches "[libraries]", with an optional trailing comment.
	tableHeaderPattern = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*(?:#.*)?$`)

	// entryPattern matches the start of a table entry: `alias = ...`.
	// Group 1: alias, possibly quoted
	entryPattern = regexp.MustCompile(`^\s*("[^"]+"|'[^']+'|[A-Za-z0-9_.-]+)\s*=`)
)

// File is a version catalog with the line of every table header and table
// entry. Lines and columns are 0-based.
type File struct {
	Path string

	lines   []string
	tables  map[string]int
	entries map[entry]int
	// data is nil when the file is not valid TOML; the line index still works.
	data map[string]any
}

type entry struct {
	table string
	alias string
}

// ParseFile indexes the catalog content read from path.
func ParseFile(path string, content []byte) *File {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	f := &File{
		Path:    path,
		lines:   strings.Split(text, "\n"),
		tables:  make(map[string]int),
		entries: make(map[entry]int),
	}

	table := ""
	for i, l := range f.lines {
		if m := tableHeaderPattern.FindStringSubmatch(l); m != nil {
			table = strings.TrimSpace(m[1])
			if _, ok := f.tables[table]; !ok {
				f.tables[table] = i
			}
			continue
		}
		if m := entryPattern.FindStringSubmatch(l); m != nil {
			k := entry{table: table, alias: strings.Trim(m[1], `"'`)}
			if _, ok := f.entries[k]; !ok {
				f.entries[k] = i
			}
		}
	}

	var data map[string]any
	if _, err := toml.Decode(text, &data); err == nil {
		f.data = data
	}
	return f
}

// TableLine returns the line of the [name] header.
func (f *File) TableLine(name string) (int, bool) {
	l, ok := f.tables[name]
	return l, ok
}

// EntryLine returns the line declaring alias in table.
func (f *File) EntryLine(table, alias string) (int, bool) {
	l, ok := f.entries[entry{table: table, alias: alias}]
	return l, ok
}

// KeyColumn finds key inside the value of the alias entry, e.g. `group1` in
// `core = { group1 = "androidx.core" }`.
func (f *File) KeyColumn(table, alias, key string) (line, col int, ok bool) {
	re := regexp.MustCompile(`(?:^|[\s{,])(` + regexp.QuoteMeta(key) + `)\s*=`)
	return f.searchEntry(table, alias, func(s string) int {
		if m := re.FindStringSubmatchIndex(s); m != nil {
			return m[2]
		}
		return -1
	})
}

// ValueColumn finds the quoted string value inside the value of the alias
// entry, e.g. `"aaa"` in `bundle = ["aaa"]`. The column is the opening quote.
func (f *File) ValueColumn(table, alias, value string) (line, col int, ok bool) {
	return f.searchEntry(table, alias, func(s string) int {
		if i := strings.Index(s, `"`+value+`"`); i >= 0 {
			return i
		}
		return strings.Index(s, `'`+value+`'`)
	})
}

// searchEntry applies find to the value text of an entry, which may span
// several lines, and returns the first hit.
func (f *File) searchEntry(table, alias string, find func(string) int) (int, int, bool) {
	start, ok := f.EntryLine(table, alias)
	if !ok {
		return 0, 0, false
	}
	for i := start; i < len(f.lines); i++ {
		text, offset := f.lines[i], 0
		if i == start {
			offset = strings.Index(text, "=") + 1
			text = text[offset:]
		} else if entryPattern.MatchString(f.lines[i]) || tableHeaderPattern.MatchString(f.lines[i]) {
			break
		}
		if c := find(text); c >= 0 {
			return i, offset + c, true
		}
	}
	return 0, 0, false
}

// Library returns the alias of the library with the given coordinates.
// Aliases whose version reference equals ref win over the others.
func (f *File) Library(group, name, ref string) (string, bool) {
	return f.firstAlias("libraries", func(v any) (bool, bool) {
		g, n, r := libraryCoordinates(v)
		return g == group && n == name, r == ref
	})
}

// Plugin returns the alias of the plugin with the given id.
func (f *File) Plugin(id, ref string) (string, bool) {
	return f.firstAlias("plugins", func(v any) (bool, bool) {
		pid, r := pluginCoordinates(v)
		return pid == id, r == ref
	})
}

// firstAlias returns the matching alias declared first in the file, preferring
// preferred matches.
func (f *File) firstAlias(table string, match func(v any) (matched, preferred bool)) (string, bool) {
	entries, _ := f.data[table].(map[string]any)
	aliases := make([]string, 0, len(entries))
	for alias := range entries {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		li, _ := f.EntryLine(table, aliases[i])
		lj, _ := f.EntryLine(table, aliases[j])
		if li != lj {
			return li < lj
		}
		return aliases[i] < aliases[j]
	})

	fallback := ""
	for _, alias := range aliases {
		matched, preferred := match(entries[alias])
		if !matched {
			continue
		}
		if preferred {
			return alias, true
		}
		if fallback == "" {
			fallback = alias
		}
	}
	return fallback, fallback != ""
}

// libraryCoordinates reads `"g:n:v"`, `{ module = "g:n" }` and
// `{ group = "g", name = "n", version.ref = "r" }` declarations.
func libraryCoordinates(v any) (group, name, ref string) {
	switch lib := v.(type) {
	case string:
		parts := strings.Split(lib, ":")
		if len(parts) >= 2 {
			return parts[0], parts[1], ""
		}
	case map[string]any:
		if module, ok := lib["module"].(string); ok {
			group, name, _ = strings.Cut(module, ":")
		} else {
			group, _ = lib["group"].(string)
			name, _ = lib["name"].(string)
		}
		return group, name, versionRef(lib)
	}
	return "", "", ""
}

// pluginCoordinates reads `"id:v"` and `{ id = "id", version.ref = "r" }`.
func pluginCoordinates(v any) (id, ref string) {
	switch plugin := v.(type) {
	case string:
		id, _, _ = strings.Cut(plugin, ":")
		return id, ""
	case map[string]any:
		id, _ = plugin["id"].(string)
		return id, versionRef(plugin)
	}
	return "", ""
}

func versionRef(decl map[string]any) string {
	if version, ok := decl["version"].(map[string]any); ok {
		ref, _ := version["ref"].(string)
		return ref
	}
	return ""
}

// Loader reads catalog files, caching them by path until they change on disk.
// Safe for concurrent use.
type Loader struct {
	files *cache.Cache
}

type cached struct {
	file    *File
	modTime time.Time
	size    int64
}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{files: cache.New(cacheTTL, cacheCleanup)}
}

// Load returns the catalog at path, or false when it cannot be read.
func (l *Loader) Load(path string) (*File, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	if v, ok := l.files.Get(path); ok {
		c := v.(*cached)
		if c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
			return c.file, true
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	f := ParseFile(path, content)
	l.files.Set(path, &cached{file: f, modTime: info.ModTime(), size: info.Size()}, cache.DefaultExpiration)
	return f, true
}

// Find returns the catalog called name under root: gradle/<name>.versions.toml
// at the root, or else the first such file in a nested build.
func (l *Loader) Find(root, name string) (*File, bool) {
	if root == "" || name == "" {
		return nil, false
	}
	if f, ok := l.Load(filepath.Join(root, "gradle", name+".versions.toml")); ok {
		return f, true
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/gradle/"+name+".versions.toml")
	if err != nil || len(matches) == 0 {
		return nil, false
	}
	sort.Strings(matches)
	return l.Load(filepath.Join(root, filepath.FromSlash(matches[0])))
}
