// Package workspace resolves relative diagnostic paths against a project
// checkout.
package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/patrickmn/go-cache"
)

var errAmbiguous = errors.New("more than one match")

// skipDirs are never searched when a path is not found at the root.
var skipDirs = []string{"build/", ".gradle/", ".git/", ".idea/", ".cxx/", "node_modules/"}

// Dir is a tracker.Workspace rooted at a directory.
//
// A relative path is resolved to root/p when that file exists. Otherwise
// the tree is searched for a unique file ending in p, which covers paths
// printed relative to a module directory. When neither finds the file,
// the lexical join is returned.
type Dir struct {
	root   string
	fsys   fs.FS
	search bool
	found  *cache.Cache
}

// New returns a workspace rooted at root. An empty root resolves nothing.
func New(root string) *Dir {
	d := &Dir{found: cache.New(cache.NoExpiration, 0)}
	if root == "" {
		return d
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	d.root = root
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		d.fsys = os.DirFS(root)
		d.search = true
	}
	return d
}

// Lexical returns a workspace that joins paths without touching the
// filesystem. It suits servers that never see the checkout.
func Lexical(root string) *Dir {
	return &Dir{root: filepath.Clean(root), found: cache.New(cache.NoExpiration, 0)}
}

// Root returns the workspace root directory.
func (d *Dir) Root() string { return d.root }

// Resolve returns an absolute form of p.
func (d *Dir) Resolve(p string) (string, bool) {
	if d.root == "" || p == "" {
		return "", false
	}
	joined := filepath.Join(d.root, filepath.FromSlash(p))
	if !d.search {
		return joined, true
	}

	if cached, ok := d.found.Get(p); ok {
		return cached.(string), true
	}

	result := joined
	if _, err := os.Stat(joined); err != nil {
		if match, ok := d.find(p); ok {
			result = match
		}
	}
	d.found.Set(p, result, cache.NoExpiration)
	return result, true
}

// find searches the tree for exactly one file whose path ends in p.
func (d *Dir) find(p string) (string, bool) {
	rel := path.Clean(filepath.ToSlash(p))
	if strings.HasPrefix(rel, "../") || rel == "." || strings.ContainsAny(rel, `*?[]{}\`) {
		return "", false
	}

	var matches []string
	err := doublestar.GlobWalk(d.fsys, "**/"+rel, func(match string, entry fs.DirEntry) error {
		if entry.IsDir() || skipped(match) {
			return nil
		}
		matches = append(matches, match)
		if len(matches) > 1 {
			return errAmbiguous
		}
		return nil
	})
	if err != nil || len(matches) != 1 {
		return "", false
	}
	return filepath.Join(d.root, filepath.FromSlash(matches[0])), true
}

func skipped(match string) bool {
	for _, dir := range skipDirs {
		if strings.HasPrefix(match, dir) || strings.Contains(match, "/"+dir) {
			return true
		}
	}
	return false
}
