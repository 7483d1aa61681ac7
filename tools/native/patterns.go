package native

import (
	"path"
	"regexp"
	"strings"

	"github.com/handleui/buildlens/tracker"
)

// Clang, ninja and linker patterns. Paths are either a Windows drive path,
// which may contain one colon, or anything up to the first colon.
var (
	// diagnosticPattern matches compiler diagnostics:
	//   ../src/app.cpp:12:10: fatal error: 'unresolved.h' file not found
	//   /src/HelloWorld.cpp:33: error: undefined reference to 'foo()'
	// Group 1: path
	// Group 2: line
	// Group 3: column (optional)
	// Group 4: severity
	// Group 5: message
	diagnosticPattern = regexp.MustCompile(`^([A-Za-z]:[\\/][^:]*|[^:\s][^:]*):(\d+)(?::(\d+))?: (warning|error|note|fatal error): (.*)$`)

	// includePattern matches the head of an include chain: "In file included from ../src/app.cpp:8:"
	// Group 1: path
	includePattern = regexp.MustCompile(`^In file included from ([A-Za-z]:[\\/][^:]*|[^:]+):(\d+)(?::\d+)?[:,]$`)

	// includeFromPattern matches later links of an include chain: "                 from ../src/b.h:3:"
	// Group 1: path
	includeFromPattern = regexp.MustCompile(`^\s+from ([A-Za-z]:[\\/][^:]*|[^:]+):(\d+)(?::\d+)?[:,]$`)

	// toolPattern matches driver and linker diagnostics without a position:
	//   clang++: error: linker command failed with exit code 1 (use -v to see invocation)
	//   /ndk/toolchains/llvm/prebuilt/linux-x86_64/bin/ld: error: cannot find -lbdisasm
	// Group 1: tool
	// Group 2: severity
	// Group 3: message
	toolPattern = regexp.MustCompile(`^(\S*?(?:ld(?:\.lld|\.gold|\.bfd)?|lld|clang(?:\+\+)?|gcc|g\+\+)(?:\.exe)?): (error|warning|fatal error): (.*)$`)

	// ldOpenFailurePattern matches the linker failing to write its output.
	// Group 1: output file
	ldOpenFailurePattern = regexp.MustCompile(`^\S*?ld(?:\.lld)?(?:\.exe)?: fatal error: (.+): open: Invalid argument$`)

	// generatedPattern matches clang's summary line: "2 warnings and 1 error generated."
	generatedPattern = regexp.MustCompile(`^\d+ (?:warnings?|errors?)(?: and \d+ (?:warnings?|errors?))? generated\.?$`)

	// ninjaProgressPattern matches ninja step lines: "[12/135] Building CXX object ..."
	ninjaProgressPattern = regexp.MustCompile(`^\[\d+/\d+\] `)
)

const (
	cxxPrefix = "C/C++: "

	ldOpenFailureHint = "File %s could not be written. This may be caused by insufficient permissions or files being locked by other processes. For example, LLDB may lock .so files while debugging."
)

// StripPrefix removes the "C/C++: " prefix AGP 7+ puts on native output.
func StripPrefix(line string) string {
	return strings.TrimPrefix(line, cxxPrefix)
}

// invalidPath reports whether p contains characters no file name can hold.
func invalidPath(p string) bool {
	if strings.ContainsAny(p, `<>"|?*`) {
		return true
	}
	for _, r := range p {
		if r < 0x20 {
			return true
		}
	}
	return false
}

// isCompilerCommand reports whether line is a clang invocation such as
// "/ndk/.../bin/clang++ --target=aarch64-none-linux-android21 ... -c app.cpp".
func isCompilerCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	tool := strings.ToLower(path.Base(strings.ReplaceAll(fields[0], `\`, "/")))
	tool = strings.TrimSuffix(tool, ".exe")
	return tool == "clang" || tool == "clang++"
}

// isFlushLine reports whether line ends the diagnostic output of one
// compiler invocation.
func isFlushLine(line string) bool {
	return generatedPattern.MatchString(line) ||
		tracker.IsNdkBuildStep(line) ||
		ninjaProgressPattern.MatchString(line) ||
		strings.HasPrefix(line, "FAILED: ") ||
		strings.HasPrefix(line, "ninja: build stopped")
}
