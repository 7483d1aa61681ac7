// Package tracker follows the per-task context that changes how compiler
// output must be read: the directory relative paths are anchored at, and the
// module, variant and ABI a native build is producing.
//
// All functions are pure. Each task owns its own State value.
package tracker

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// KnownABIs are the Android ABIs recognized in task names and directories.
var KnownABIs = []string{"armeabi-v7a", "arm64-v8a", "x86", "x86_64"}

// State is the context of one task.
type State struct {
	Dir     string // directory from the last "Entering directory" marker
	Module  string // Gradle project path, e.g. ":app"
	Variant string // build variant, e.g. "Debug"
	ABI     string // one of KnownABIs, or ""
	Task    string // full Gradle task path
	Native  bool   // the task runs a native build
}

// Workspace resolves paths when no directory marker has been seen.
type Workspace interface {
	// Resolve returns an absolute form of p, or false when it cannot.
	Resolve(p string) (string, bool)
	// Root returns the workspace root directory.
	Root() string
}

var (
	// taskLinePattern matches Gradle task headers: "> Task :app:compileDebugJavaWithJavac UP-TO-DATE"
	// Group 1: task path
	taskLinePattern = regexp.MustCompile(`^> Task (\S+?)(?:\s+(?:UP-TO-DATE|FAILED|NO-SOURCE|SKIPPED|FROM-CACHE))*\s*$`)

	// nativeTaskPattern matches native build task names
	// Group 1: variant
	// Group 2: ABI (optional)
	nativeTaskPattern = regexp.MustCompile(`^(?:externalNativeBuild|buildCMake|buildNdkBuild|configureCMake|configureNdkBuild)([A-Za-z0-9]*)(?:\[([^\]]+)\])?$`)

	// enteringDirPattern matches ninja and make directory markers:
	//   ninja: Entering directory `/a/b/c'
	//   make[1]: Entering directory '/a/b/c'
	// Group 1: directory
	enteringDirPattern = regexp.MustCompile("^(?:ninja|make(?:\\[\\d+\\])?): Entering directory [`'\"]?(.*?)['`\"]?\\s*$")

	// ndkBuildPattern matches ndk-build step lines: "[arm64-v8a] Compile++      : app <= main.cpp"
	// Group 1: ABI
	ndkBuildPattern = regexp.MustCompile(`^\[([A-Za-z0-9_-]+)\] (?:Compile\+\+|Compile|SharedLibrary|StaticLibrary|Executable|Prebuilt|Install)\b`)

	// gradleSectionPattern matches the lines that open Gradle's own failure
	// and summary output:
	//   FAILURE: Build failed with an exception.
	//   * What went wrong:
	//   BUILD SUCCESSFUL in 3s
	gradleSectionPattern = regexp.MustCompile(`^(?:FAILURE: |\* (?:What went wrong|Where|Try|Exception is|Get more help at)\b|BUILD (?:FAILED|SUCCESSFUL)\b|Total time: )`)

	driveLetterPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// IsKnownABI reports whether abi is one of KnownABIs.
func IsKnownABI(abi string) bool {
	return slices.Contains(KnownABIs, abi)
}

// IsStructuralMarker reports whether line changes tracker state or starts
// a new section of output.
func IsStructuralMarker(line string) bool {
	return taskLinePattern.MatchString(line) ||
		enteringDirPattern.MatchString(line) ||
		gradleSectionPattern.MatchString(line)
}

// IsEnteringDirectory reports whether line is a directory marker.
func IsEnteringDirectory(line string) bool {
	return enteringDirPattern.MatchString(line)
}

// IsNdkBuildStep reports whether line is an ndk-build step such as
// "[x86] Compile++ arm  : app <= app.cpp".
func IsNdkBuildStep(line string) bool {
	return ndkBuildPattern.MatchString(line)
}

// FromTaskID seeds a state from a task identifier such as
// ":app:buildCMakeDebug[x86]" or "Task :app:buildCMakeDebug[x86]".
func FromTaskID(id string) State {
	var s State
	taskPath := id
	if !strings.HasPrefix(taskPath, ":") {
		i := strings.Index(id, "Task :")
		if i < 0 {
			return s
		}
		taskPath = id[i+len("Task "):]
	}
	if fields := strings.Fields(taskPath); len(fields) > 0 {
		return s.enterTask(fields[0])
	}
	return s
}

// Reduce returns the state after observing line. Lines that are not
// markers return s unchanged.
func Reduce(s State, line string) State {
	if m := enteringDirPattern.FindStringSubmatch(line); m != nil {
		s.Dir = m[1]
		s.Native = true
		if abi := lastComponent(m[1]); IsKnownABI(abi) {
			s.ABI = abi
		}
		return s
	}
	if m := taskLinePattern.FindStringSubmatch(line); m != nil {
		return s.enterTask(m[1])
	}
	if m := ndkBuildPattern.FindStringSubmatch(line); m != nil && IsKnownABI(m[1]) {
		s.ABI = m[1]
		return s
	}
	return s
}

// enterTask updates module, variant, ABI and nativeness from a task path.
// Dir is kept.
func (s State) enterTask(taskPath string) State {
	s.Task = taskPath
	s.Module, s.Variant, s.ABI, s.Native = "", "", "", false

	name := taskPath
	if i := strings.LastIndex(taskPath, ":"); i >= 0 {
		s.Module = taskPath[:i]
		name = taskPath[i+1:]
	}
	if m := nativeTaskPattern.FindStringSubmatch(name); m != nil {
		s.Native = true
		s.Variant = m[1]
		if IsKnownABI(m[2]) {
			s.ABI = m[2]
		}
	}
	return s
}

// Group renders the "[module variant abi]" label, or "" when all three are
// unknown.
func (s State) Group() string {
	if s.Module == "" && s.Variant == "" && s.ABI == "" {
		return ""
	}
	abi := ""
	if s.ABI != "" {
		abi = " " + s.ABI
	}
	return fmt.Sprintf("[%s %s%s]", s.Module, s.Variant, abi)
}

// Resolve returns p anchored at the state's directory. Absolute paths are
// cleaned; relative paths without a known directory are offered to ws and
// otherwise returned as-is. Windows forms are handled on every host.
func (s State) Resolve(p string, ws Workspace) string {
	if p == "" {
		return p
	}
	return norm.NFC.String(s.resolve(p, ws))
}

func (s State) resolve(p string, ws Workspace) string {
	switch {
	case isWindowsAbs(p):
		return cleanWindows(p)
	case strings.HasPrefix(p, "/"):
		return path.Clean(p)
	case s.Dir != "":
		if isWindowsAbs(s.Dir) || strings.Contains(s.Dir, `\`) {
			return cleanWindows(s.Dir + `\` + p)
		}
		return path.Join(s.Dir, p)
	case ws != nil:
		if abs, ok := ws.Resolve(p); ok {
			return abs
		}
	}
	return p
}

func isWindowsAbs(p string) bool {
	return driveLetterPattern.MatchString(p) || strings.HasPrefix(p, `\\`)
}

// cleanWindows normalizes separators and dot segments of a Windows path.
func cleanWindows(p string) string {
	unc := strings.HasPrefix(p, `\\`)
	cleaned := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	cleaned = strings.ReplaceAll(cleaned, "/", `\`)
	if unc && !strings.HasPrefix(cleaned, `\\`) {
		cleaned = `\` + cleaned
	}
	return cleaned
}

func lastComponent(dir string) string {
	dir = strings.TrimRight(dir, `/\`)
	if i := strings.LastIndexAny(dir, `/\`); i >= 0 {
		return dir[i+1:]
	}
	return dir
}
