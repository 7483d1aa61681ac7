// Package config loads and saves the buildlens settings: the global JSON
// config in the buildlens home directory and the optional per-project YAML
// file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nightlyone/lockfile"
)

// --- File paths ---

const (
	homeDirName      = ".buildlens"
	globalConfigFile = "config.json"
	lockFileName     = "config.lock"

	// HomeEnv overrides ~/.buildlens, mostly for tests.
	HomeEnv = "BUILDLENS_HOME"
	// APIKeyEnv overrides the configured API key.
	APIKeyEnv = "ANTHROPIC_API_KEY"
	// LogLevelEnv overrides the configured log level.
	LogLevelEnv = "BUILDLENS_LOG_LEVEL"
)

// ErrLocked is returned when another process is writing the config.
var ErrLocked = errors.New("config is locked by another process")

// ErrUnknownKey is returned by Set for keys it does not manage.
var ErrUnknownKey = errors.New("unknown config key")

// --- Structs ---

// GlobalConfig is the persisted global settings file.
type GlobalConfig struct {
	APIKey         string `json:"api_key,omitempty"`
	Model          string `json:"model,omitempty"`
	AskForHelp     *bool  `json:"ask_for_help,omitempty"`
	TimeoutSeconds *int   `json:"timeout_seconds,omitempty"`
	LogLevel       string `json:"log_level,omitempty"`
}

// --- Defaults ---

const (
	// DefaultModel is the model the ask-for-help runner uses.
	DefaultModel = "claude-sonnet-4-5"
	// DefaultTimeout bounds one ask-for-help request.
	DefaultTimeout = 60 * time.Second
	// DefaultLogLevel is used when nothing else is configured.
	DefaultLogLevel = "warn"

	minTimeoutSeconds = 5
	maxTimeoutSeconds = 600
	modelPrefix       = "claude-"
)

// --- Value source tracking ---

// ValueSource indicates where a configuration value originated.
type ValueSource int

const (
	SourceDefault ValueSource = iota
	SourceGlobal
	SourceProject
	SourceEnv
)

// String returns the display name for a value source.
func (s ValueSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceGlobal:
		return "global"
	case SourceProject:
		return "project"
	case SourceEnv:
		return "env"
	}
	return "unknown"
}

// Value holds a resolved value with its source.
type Value[T any] struct {
	Value  T
	Source ValueSource
}

// Config is the resolved configuration: env > project > global > defaults.
type Config struct {
	APIKey     Value[string]
	Model      Value[string]
	AskForHelp Value[bool]
	Timeout    Value[time.Duration]
	LogLevel   Value[string]

	// Project is the project file, empty when none was found.
	Project *Project

	global *GlobalConfig
}

// --- Path helpers ---

// Dir returns the buildlens home directory.
func Dir() (string, error) {
	if override := os.Getenv(HomeEnv); override != "" {
		return filepath.Clean(override), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, homeDirName), nil
}

// Path returns the path of the global config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, globalConfigFile), nil
}

// --- Loading ---

// Load reads the global config and the project file found from dir, then
// resolves every setting. An empty dir skips the project file.
func Load(dir string) (*Config, error) {
	global, err := loadGlobal()
	if err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}

	project := &Project{}
	if dir != "" {
		project, err = FindProject(dir)
		if err != nil {
			return nil, fmt.Errorf("project config: %w", err)
		}
	}
	return resolve(global, project), nil
}

// Defaults returns the configuration used when loading fails.
func Defaults() *Config {
	return resolve(&GlobalConfig{}, &Project{})
}

func resolve(global *GlobalConfig, project *Project) *Config {
	c := &Config{
		Model:      Value[string]{DefaultModel, SourceDefault},
		AskForHelp: Value[bool]{true, SourceDefault},
		Timeout:    Value[time.Duration]{DefaultTimeout, SourceDefault},
		LogLevel:   Value[string]{DefaultLogLevel, SourceDefault},
		Project:    project,
		global:     global,
	}

	if global.APIKey != "" {
		c.APIKey = Value[string]{global.APIKey, SourceGlobal}
	}
	if global.Model != "" {
		if strings.HasPrefix(global.Model, modelPrefix) {
			c.Model = Value[string]{global.Model, SourceGlobal}
		} else {
			slog.Warn("ignoring invalid model", "model", global.Model, "want_prefix", modelPrefix)
		}
	}
	if global.AskForHelp != nil {
		c.AskForHelp = Value[bool]{*global.AskForHelp, SourceGlobal}
	}
	if global.TimeoutSeconds != nil {
		c.Timeout = Value[time.Duration]{time.Duration(clampTimeout(*global.TimeoutSeconds)) * time.Second, SourceGlobal}
	}
	if global.LogLevel != "" {
		c.LogLevel = Value[string]{global.LogLevel, SourceGlobal}
	}

	if project.AskForHelp != nil {
		c.AskForHelp = Value[bool]{*project.AskForHelp, SourceProject}
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		c.APIKey = Value[string]{key, SourceEnv}
	}
	if level := os.Getenv(LogLevelEnv); level != "" {
		c.LogLevel = Value[string]{level, SourceEnv}
	}
	return c
}

func loadGlobal() (*GlobalConfig, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	// #nosec G304 - path is derived from the user's home directory
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading: %w", err)
	}
	if len(data) == 0 {
		return &GlobalConfig{}, nil
	}

	var cfg GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func clampTimeout(seconds int) int {
	return min(max(seconds, minTimeoutSeconds), maxTimeoutSeconds)
}

// --- Saving ---

// Keys lists the settings Set accepts.
var Keys = []string{"api-key", "model", "ask-for-help", "timeout", "log-level"}

// Set validates and stores one setting, then saves the global config.
func (c *Config) Set(key, value string) error {
	g := *c.global
	switch key {
	case "api-key":
		g.APIKey = strings.TrimSpace(value)
	case "model":
		if value != "" && !strings.HasPrefix(value, modelPrefix) {
			return fmt.Errorf("model must start with %q", modelPrefix)
		}
		g.Model = value
	case "ask-for-help":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("ask-for-help: %w", err)
		}
		g.AskForHelp = &b
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		secs := clampTimeout(int(d / time.Second))
		g.TimeoutSeconds = &secs
	case "log-level":
		if _, err := ParseLevel(value); err != nil {
			return err
		}
		g.LogLevel = value
	default:
		return fmt.Errorf("%w: %q (valid keys: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}

	if err := Save(&g); err != nil {
		return err
	}
	*c = *resolve(&g, c.Project)
	return nil
}

// Save writes global to disk. Writers are serialized with a lock file next
// to the config; ErrLocked is returned while another process holds it.
func Save(global *GlobalConfig) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	// #nosec G301 - 0700 is intentionally restrictive
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	abs, err := filepath.Abs(filepath.Join(dir, lockFileName))
	if err != nil {
		return fmt.Errorf("lock path: %w", err)
	}
	lock, err := lockfile.New(abs)
	if err != nil {
		return fmt.Errorf("creating lock: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			return ErrLocked
		}
		return fmt.Errorf("acquiring lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(global, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, globalConfigFile)
	tmp := path + ".tmp"
	// #nosec G306 - 0600 is intentionally restrictive
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing: %w", err)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: use debug, info, warn or error", s)
	}
	return level, nil
}

// MaskAPIKey returns a masked version of an API key for safe display.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
