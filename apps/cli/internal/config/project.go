package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// ProjectFileName is the per-project settings file, looked up from the
// working directory towards the filesystem root.
const ProjectFileName = ".buildlens.yaml"

// Project holds settings checked into a repository.
type Project struct {
	// Workspace is the root used to resolve relative diagnostic paths.
	// A relative value is resolved against the file's directory.
	Workspace string `yaml:"workspace"`
	// DisableParsers removes parsers from the chain by ID.
	DisableParsers []string `yaml:"disable_parsers"`
	// AskForHelp overrides the global ask-for-help toggle.
	AskForHelp *bool `yaml:"ask_for_help"`
	// TagSeparator overrides the task tag separator.
	TagSeparator string `yaml:"tag_separator"`

	// Path is where the file was read from, empty when none was found.
	Path string `yaml:"-"`
}

// FindProject walks up from dir and loads the first project file found.
// No file is not an error.
func FindProject(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		candidate := filepath.Join(abs, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			return LoadProject(candidate)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return &Project{}, nil
		}
		abs = parent
	}
}

// LoadProject reads a project file.
func LoadProject(path string) (*Project, error) {
	// #nosec G304 - path is a project file the user asked for
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var p Project
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	p.Path = path
	if p.Workspace != "" && !filepath.IsAbs(p.Workspace) {
		p.Workspace = filepath.Join(filepath.Dir(path), p.Workspace)
	}
	return &p, nil
}
