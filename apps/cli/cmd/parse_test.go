package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/handleui/buildlens/quickfix"
	"github.com/tidwall/gjson"
)

func TestParse_Stdin(t *testing.T) {
	stdout, _, err := execute(t, kotlinLog, "parse")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	for _, want := range []string{
		"/p/app/src/main/java/Main.kt (2 errors, 0 warnings)",
		"Unresolved reference 'foo'.",
		"Found 3 problems (2 errors, 1 warning) across 2 files",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q\n%s", want, stdout)
		}
	}
}

func TestParse_JSON(t *testing.T) {
	stdout, _, err := execute(t, "", "parse", "-o", "json", writeLog(t, kotlinLog))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if n := gjson.Get(stdout, "events.#").Int(); n != 3 {
		t.Errorf("events = %d, want 3", n)
	}
	if got := gjson.Get(stdout, "events.0.task").String(); got != ":app:compileDebugKotlin" {
		t.Errorf("events.0.task = %q", got)
	}
	if got := gjson.Get(stdout, "events.0.quickFixes.0.id").String(); got != quickfix.AskForHelpID {
		t.Errorf("events.0.quickFixes.0.id = %q, want %q", got, quickfix.AskForHelpID)
	}
	if got := gjson.Get(stdout, "events.0.quickFixes.0.command").String(); got != "./gradlew :app:compileDebugKotlin" {
		t.Errorf("command = %q", got)
	}
	if gjson.Get(stdout, "events.1.quickFixes").Exists() {
		t.Error("warning carries a quick fix")
	}
	if got := gjson.Get(stdout, "stats.byParser.kotlin").Int(); got != 3 {
		t.Errorf("stats.byParser.kotlin = %d, want 3", got)
	}
}

func TestParse_NoAsk(t *testing.T) {
	stdout, _, err := execute(t, kotlinLog, "parse", "-o", "json", "--no-ask")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if gjson.Get(stdout, "events.0.quickFixes").Exists() {
		t.Errorf("--no-ask still attached fixes: %s", stdout)
	}
}

func TestParse_ProjectFile(t *testing.T) {
	dir := t.TempDir()
	project := "disable_parsers: [kotlin]\ntag_separator: \"#\"\n"
	if err := os.WriteFile(filepath.Join(dir, ".buildlens.yaml"), []byte(project), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	log := strings.ReplaceAll(kotlinLog, "|", "#")
	stdout, _, err := execute(t, log, "parse", "-o", "json")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if got := gjson.Get(stdout, "stats.tasks").Int(); got != 1 {
		t.Errorf("stats.tasks = %d, want 1", got)
	}
	if got := gjson.Get(stdout, "stats.byParser.kotlin").Int(); got != 0 {
		t.Errorf("disabled kotlin parser still classified %d lines", got)
	}
}

func TestParse_MultipleFilesKeepOrder(t *testing.T) {
	empty := writeLog(t, "BUILD SUCCESSFUL in 1s\n")
	failing := writeLog(t, kotlinLog)

	stdout, _, err := execute(t, "", "parse", "-o", "json", empty, failing)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if got := gjson.Get(stdout, "#.source").String(); got != `["`+empty+`","`+failing+`"]` {
		t.Errorf("sources = %s", got)
	}
	if got := gjson.Get(stdout, "1.summary.errors").Int(); got != 2 {
		t.Errorf("second report errors = %d, want 2", got)
	}
}

func TestParse_MinKind(t *testing.T) {
	stdout, _, err := execute(t, kotlinLog, "parse", "-o", "compact", "--min-kind", "error")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if got := gjson.Get(stdout, "events.#").Int(); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
	if got := gjson.Get(stdout, "stats.warnings").Int(); got != 0 {
		t.Errorf("warnings = %d, want 0", got)
	}
}

func TestParse_ExitCode(t *testing.T) {
	_, _, err := execute(t, kotlinLog, "parse", "--exit-code")
	if !errors.Is(err, ErrProblemsFound) {
		t.Errorf("error = %v, want ErrProblemsFound", err)
	}

	_, _, err = execute(t, "BUILD SUCCESSFUL in 1s\n", "parse", "--exit-code")
	if err != nil {
		t.Errorf("clean log error = %v, want nil", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"parse", "-o", "xml"}, "invalid output format"},
		{"bad kind", []string{"parse", "--min-kind", "fatal"}, "invalid severity"},
		{"unknown parser", []string{"parse", "--disable", "nope"}, `unknown parser "nope"`},
		{"missing file", []string{"parse", "/does/not/exist.log"}, "no such file"},
		{"ask and no-ask", []string{"parse", "--ask", "--no-ask"}, "cannot be combined"},
		{"ask without key", []string{"parse", "--ask"}, "no API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, kotlinLog, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"info", false},
		{"Warning", false},
		{"ERROR", false},
		{"fatal", true},
	}
	for _, tt := range tests {
		if _, err := parseKind(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("parseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
