package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	t.Setenv(APIKeyEnv, "")
	t.Setenv(LogLevelEnv, "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	setHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Value != DefaultModel || cfg.Model.Source != SourceDefault {
		t.Errorf("Model = %v, want default %q", cfg.Model, DefaultModel)
	}
	if !cfg.AskForHelp.Value {
		t.Error("AskForHelp = false, want true")
	}
	if cfg.Timeout.Value != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout.Value, DefaultTimeout)
	}
	if cfg.APIKey.Value != "" {
		t.Errorf("APIKey = %q, want empty", cfg.APIKey.Value)
	}
}

func TestLoad_Precedence(t *testing.T) {
	home := setHome(t)

	ask := false
	timeout := 1
	writeGlobal(t, home, GlobalConfig{
		APIKey:         "sk-global",
		Model:          "gpt-4",
		AskForHelp:     &ask,
		TimeoutSeconds: &timeout,
		LogLevel:       "info",
	})
	t.Setenv(APIKeyEnv, "sk-env")

	project := t.TempDir()
	writeFile(t, filepath.Join(project, ProjectFileName), "ask_for_help: true\n")

	cfg, err := Load(project)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.APIKey.Value != "sk-env" || cfg.APIKey.Source != SourceEnv {
		t.Errorf("APIKey = %+v, want sk-env from env", cfg.APIKey)
	}
	if cfg.Model.Source != SourceDefault {
		t.Errorf("invalid model not ignored: %+v", cfg.Model)
	}
	if !cfg.AskForHelp.Value || cfg.AskForHelp.Source != SourceProject {
		t.Errorf("AskForHelp = %+v, want true from project", cfg.AskForHelp)
	}
	if cfg.Timeout.Value != minTimeoutSeconds*time.Second {
		t.Errorf("Timeout = %v, want clamped to %ds", cfg.Timeout.Value, minTimeoutSeconds)
	}
	if cfg.LogLevel.Value != "info" || cfg.LogLevel.Source != SourceGlobal {
		t.Errorf("LogLevel = %+v, want info from global", cfg.LogLevel)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	home := setHome(t)
	writeFile(t, filepath.Join(home, globalConfigFile), "{not json")

	if _, err := Load(""); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestSet(t *testing.T) {
	home := setHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"model", "claude-opus-4-1", false},
		{"model", "gpt-4", true},
		{"ask-for-help", "false", false},
		{"ask-for-help", "maybe", true},
		{"timeout", "90s", false},
		{"timeout", "soon", true},
		{"log-level", "debug", false},
		{"log-level", "loud", true},
		{"api-key", " sk-test ", false},
		{"color", "red", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := cfg.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Set(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}

	if err := cfg.Set("color", "red"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Set(color) error = %v, want ErrUnknownKey", err)
	}

	reloaded, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if reloaded.Model.Value != "claude-opus-4-1" {
		t.Errorf("Model = %q, want claude-opus-4-1", reloaded.Model.Value)
	}
	if reloaded.AskForHelp.Value {
		t.Error("AskForHelp = true, want false")
	}
	if reloaded.Timeout.Value != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", reloaded.Timeout.Value)
	}
	if reloaded.APIKey.Value != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", reloaded.APIKey.Value)
	}

	info, err := os.Stat(filepath.Join(home, globalConfigFile))
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}
}

func TestSave_Locked(t *testing.T) {
	home := setHome(t)
	// init holds the lock; it is alive for as long as the test runs.
	writeFile(t, filepath.Join(home, lockFileName), "1\n")

	err := Save(&GlobalConfig{Model: DefaultModel})
	if err == nil {
		t.Skip("pid 1 lock not treated as busy on this system")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("Save() error = %v, want ErrLocked", err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key, want string
	}{
		{"", ""},
		{"abc", "****"},
		{"sk-ant-123456", "****3456"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestValueSource_String(t *testing.T) {
	tests := []struct {
		s    ValueSource
		want string
	}{
		{SourceDefault, "default"},
		{SourceGlobal, "global"},
		{SourceProject, "project"},
		{SourceEnv, "env"},
		{ValueSource(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func writeGlobal(t *testing.T, home string, cfg GlobalConfig) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(home, globalConfigFile), string(data))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
