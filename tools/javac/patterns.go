package javac

import "regexp"

// javac output patterns.
var (
	// headerPattern matches javac diagnostic headers:
	//   /src/Test.java:3: error: cannot find symbol
	//   C:\src\Test.java:12: warning: [deprecation] foo() in Bar has been deprecated
	//   /src/Test.java:70: <identifier> expected
	// Group 1: path
	// Group 2: line
	// Group 3: column (optional)
	// Group 4: severity (optional, older javac omits it)
	// Group 5: message
	headerPattern = regexp.MustCompile(`^([A-Za-z]:[\\/][^:]*\.java|[^:\s][^:]*\.java):(\d+)(?::(\d+))?: (?:(error|warning): )?(.+)$`)

	// symbolPattern matches "symbol:   variable v4" and the older "symbol  : variable v4"
	// Group 1: symbol
	symbolPattern = regexp.MustCompile(`^\s*symbol\s*:\s*(.+)$`)

	// locationPattern matches "location: class Test"
	locationPattern = regexp.MustCompile(`^\s*location\s*:\s*(.+)$`)

	// caretPattern matches the marker line under the offending source line.
	caretPattern = regexp.MustCompile(`^\s*\^\s*$`)

	// countPattern matches the closing count: "2 errors", "1 warning"
	countPattern = regexp.MustCompile(`^\d+ (?:errors?|warnings?)$`)

	// obsoletePattern matches
	//   warning: [options] source value 8 is obsolete and will be removed in a future release
	// Group 1: source or target
	// Group 2: version
	obsoletePattern = regexp.MustCompile(`^warning: \[options\] (source|target) value (\S+) is obsolete and will be removed in a future release$`)

	// suppressHintPattern matches the hint javac prints after obsolete option warnings.
	suppressHintPattern = regexp.MustCompile(`^warning: \[options\] To suppress warnings about obsolete options, use -Xlint:-options\.$`)

	// removedPattern matches
	//   error: Source option 7 is no longer supported. Use 8 or later.
	// Group 1: Source or Target
	// Group 2: version
	// Group 3: minimum supported version
	removedPattern = regexp.MustCompile(`^error: (Source|Target) option (\S+) is no longer supported\. Use (\S+) or later\.$`)
)
