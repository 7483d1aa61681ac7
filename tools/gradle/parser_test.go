package gradle

import (
	"strings"
	"testing"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser/parsertest"
)

func TestParser_BuildFileFailure(t *testing.T) {
	input := `FAILURE: Build failed with an exception.

* Where:
Build file '/p/project/build.gradle' line: 9

* What went wrong:
A problem occurred evaluating project ':project'.
> Could not find method ERROR() for arguments [{plugin=android}] on project ':project'.

* Try:
Run with --stacktrace option to get the stack trace. Run with --info or --debug option to get more log output.

BUILD FAILED

Total time: 18.303 secs`

	evs := parsertest.Events(NewParser(), nil, input)
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(evs), evs)
	}

	e := evs[0]
	if e.Kind != events.KindError {
		t.Errorf("Kind = %q, want %q", e.Kind, events.KindError)
	}
	if e.Headline != "A problem occurred evaluating project ':project'." {
		t.Errorf("Headline = %q", e.Headline)
	}
	wantDesc := "A problem occurred evaluating project ':project'.\n" +
		"> Could not find method ERROR() for arguments [{plugin=android}] on project ':project'."
	if e.Description != wantDesc {
		t.Errorf("Description = %q, want %q", e.Description, wantDesc)
	}
	if e.Position == nil || e.Position.Path != "/p/project/build.gradle" || e.Position.StartLine != 8 || e.Position.StartColumn != 0 {
		t.Errorf("Position = %+v, want /p/project/build.gradle 8:0", e.Position)
	}

	if evs[1].Kind != events.KindInfo || evs[1].Headline != "BUILD FAILED" {
		t.Errorf("second event = %s %q", evs[1].Kind, evs[1].Headline)
	}
	if evs[2].Kind != events.KindInfo || evs[2].Headline != "Total time: 18.303 secs" {
		t.Errorf("third event = %s %q", evs[2].Kind, evs[2].Headline)
	}
}

func TestParser_ExecutionFailed(t *testing.T) {
	input := `FAILURE: Build failed with an exception.

* What went wrong:
Execution failed for task ':MyApplication:compileFreeDebug'.
> invalid source release: 1.7

* Try:
Run with --stacktrace option to get the stack trace.

BUILD FAILED in 5s`

	evs := parsertest.Events(NewParser(), nil, input)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Position != nil {
		t.Errorf("Position = %+v, want nil", evs[0].Position)
	}
	if !strings.HasSuffix(evs[0].Description, "> invalid source release: 1.7") {
		t.Errorf("Description = %q", evs[0].Description)
	}
	if evs[1].Headline != "BUILD FAILED in 5s" {
		t.Errorf("Headline = %q", evs[1].Headline)
	}
}

func TestParser_SectionWithoutBlankLine(t *testing.T) {
	input := `FAILURE: Build failed with an exception.
* What went wrong:
A problem occurred configuring project ':EpicMix'.
> Failed to notify project evaluation listener.
   > java.lang.OutOfMemoryError: PermGen space
* Try:
Run with --stacktrace option to get the stack trace.`

	evs := parsertest.Events(NewParser(), nil, input)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if n := strings.Count(evs[0].Description, "\n"); n != 2 {
		t.Errorf("Description has %d line breaks, want 2: %q", n, evs[0].Description)
	}
}

func TestParser_WhereDoesNotLeakIntoNextBlock(t *testing.T) {
	input := `FAILURE: Build failed with an exception.
* Where:
Build file '/p/build.gradle' line: 3
FAILURE: Build failed with an exception.
* What went wrong:
Something else`

	evs := parsertest.Events(NewParser(), nil, input)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].Position != nil {
		t.Errorf("Position = %+v, want nil", evs[0].Position)
	}
}

func TestParser_MultipleFailures(t *testing.T) {
	input := `FAILURE: Build completed with 2 failures.

1: Task failed with an exception.
-----------
* What went wrong:
Execution failed for task ':app:compileDebugKotlin'.
> Compilation error. See log for more details

==============================================================================

2: Task failed with an exception.
-----------
* What went wrong:
Execution failed for task ':lib:compileDebugJavaWithJavac'.
> Compilation failed; see the compiler error output for details.`

	res := parsertest.Run(NewParser(), nil, input)
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[1].Headline != "Execution failed for task ':lib:compileDebugJavaWithJavac'." {
		t.Errorf("Headline = %q", res.Events[1].Headline)
	}
}

func TestParser_FatalXML(t *testing.T) {
	line := `[Fatal Error] :5:7: The element type "error" must be terminated by the matching end-tag "</error>".`
	evs := parsertest.Events(NewParser(), nil, line)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	want := `The element type "error" must be terminated by the matching end-tag "</error>".`
	if evs[0].Headline != want {
		t.Errorf("Headline = %q, want %q", evs[0].Headline, want)
	}
	if evs[0].Kind != events.KindError || evs[0].Group != "XML validation" {
		t.Errorf("event = %s %q", evs[0].Kind, evs[0].Group)
	}
}

func TestParser_NoisePatterns(t *testing.T) {
	np := NewParser().NoisePatterns()
	if len(np.FastPrefixes) == 0 || len(np.Regex) == 0 {
		t.Fatal("NoisePatterns() is empty")
	}
	for _, line := range []string{"-----------", "1: Task failed with an exception.", "=========="} {
		matched := false
		for _, re := range np.Regex {
			if re.MatchString(line) {
				matched = true
			}
		}
		if !matched {
			t.Errorf("%q is not noise", line)
		}
	}
}

func TestParser_Rejects(t *testing.T) {
	input := `> Task :app:preBuild UP-TO-DATE
BUILD SUCCESSFUL in 3s
/src/Main.java:3: error: x`

	res := parsertest.Run(NewParser(), nil, input)
	if len(res.Events) != 0 {
		t.Errorf("got %d events, want 0", len(res.Events))
	}
	if len(res.Rejected) != 3 {
		t.Errorf("rejected %d lines, want 3", len(res.Rejected))
	}
}
