package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/handleui/buildlens/apps/cli/internal/config"
	"github.com/handleui/buildlens/apps/cli/internal/output"
	"github.com/handleui/buildlens/events"
)

const kotlinLog = `:app:compileDebugKotlin|e: file:///p/app/src/main/java/Main.kt:12:5 Unresolved reference 'foo'.
:app:compileDebugKotlin|w: file:///p/app/src/main/java/Util.kt:3:1 Parameter 'x' is never used
:app:compileDebugKotlin|e: file:///p/app/src/main/java/Main.kt:20:9 Type mismatch: inferred type is String but Int was expected
`

// execute runs the root command with fresh flag values in an isolated
// home directory.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return executeIn(t, t.TempDir(), stdin, args...)
}

func executeIn(t *testing.T, home, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.HomeEnv, home)
	t.Setenv(config.APIKeyEnv, "")
	t.Setenv(config.LogLevelEnv, "")
	t.Setenv("BUILDLENS_NO_UPDATE_CHECK", "1")

	verbose, logFormat = false, "text"
	outputFormat, minKind = string(output.FormatText), string(events.KindInfo)
	snippets, exitCode, noAsk, askLimit = false, false, false, 0
	parseOpts, watchOpts = pipelineOptions{}, pipelineOptions{}
	watchFormat, watchIdle = string(output.FormatText), 0
	noUpdateCheck = false

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.log")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "buildlens" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "buildlens")
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	expected := []string{"parse", "watch", "config", "version"}

	commandMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		commandMap[c.Name()] = true
	}
	for _, name := range expected {
		if !commandMap[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestRoot_InvalidLogFormat(t *testing.T) {
	if _, _, err := execute(t, "", "parse", "--log-format", "xml"); err == nil {
		t.Error("expected error for invalid log format")
	}
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	stdout, stderr, err := execute(t, kotlinLog, "parse", "-v", "-o", "json")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !strings.Contains(stderr, "task started") {
		t.Errorf("stderr missing debug logs:\n%s", stderr)
	}
	if strings.Contains(stdout, "task started") {
		t.Error("logs leaked into stdout")
	}
}

func TestRoot_ConfigErrorFallsBack(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := executeIn(t, home, kotlinLog, "parse")
	if err != nil {
		t.Fatalf("parse with broken config error: %v", err)
	}
	if !strings.Contains(stderr, "Config error") {
		t.Errorf("stderr = %q, want config warning", stderr)
	}
	if !strings.Contains(stdout, "Found 3 problems") {
		t.Errorf("parse did not run with defaults:\n%s", stdout)
	}

	if _, _, err := executeIn(t, home, "", "config", "show"); err == nil {
		t.Error("config show with broken config error = nil")
	}
}
