package quickfix

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/javac"
	"github.com/handleui/buildlens/tools/kotlin"
	"github.com/handleui/buildlens/tools/parser"
	"github.com/handleui/buildlens/tools/parser/parsertest"
)

const kotlinOutput = `e: file:///p/app/src/main/java/Main.kt:12:5 Unresolved reference 'foo'.
w: file:///p/app/src/main/java/Util.kt:3:1 Parameter 'x' is never used
some unrelated output`

func TestWrapper_ErrorsGetOneFix(t *testing.T) {
	task := parser.NewTask(":app:compileDebugKotlin", nil)
	res := parsertest.Run(Wrap(kotlin.NewParser(), nil), task, kotlinOutput)

	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}

	errEvent, warnEvent := res.Events[0], res.Events[1]
	if len(errEvent.QuickFixes) != 1 {
		t.Fatalf("error has %d fixes, want 1", len(errEvent.QuickFixes))
	}
	fix := errEvent.QuickFixes[0]
	if fix.ID != AskForHelpID {
		t.Errorf("fix ID = %q, want %q", fix.ID, AskForHelpID)
	}
	if fix.Command != "./gradlew :app:compileDebugKotlin" {
		t.Errorf("Command = %q", fix.Command)
	}
	for _, want := range []string{"Unresolved reference 'foo'.", "./gradlew :app:compileDebugKotlin", "line 12"} {
		if !strings.Contains(fix.Prompt, want) {
			t.Errorf("Prompt does not contain %q:\n%s", want, fix.Prompt)
		}
	}
	if len(warnEvent.QuickFixes) != 0 {
		t.Errorf("warning has fixes %+v, want none", warnEvent.QuickFixes)
	}
}

func TestWrapper_KeepsAcceptance(t *testing.T) {
	for _, input := range []string{kotlinOutput, "warning: x\nerror: y\nnothing"} {
		plain := parsertest.Run(kotlin.NewParser(), nil, input)
		wrapped := parsertest.Run(Wrap(kotlin.NewParser(), nil), nil, input)

		if strings.Join(plain.Rejected, "\n") != strings.Join(wrapped.Rejected, "\n") {
			t.Errorf("Rejected = %q, want %q", wrapped.Rejected, plain.Rejected)
		}
		if len(plain.Events) != len(wrapped.Events) {
			t.Errorf("got %d events, want %d", len(wrapped.Events), len(plain.Events))
		}
	}
}

func TestWrapper_Toggle(t *testing.T) {
	enabled := false
	w := Wrap(kotlin.NewParser(), ToggleFunc(func() bool { return enabled }))

	evs := parsertest.Events(w, nil, kotlinOutput)
	if len(evs[0].QuickFixes) != 0 {
		t.Errorf("disabled wrapper added %+v", evs[0].QuickFixes)
	}

	enabled = true
	evs = parsertest.Events(w, nil, kotlinOutput)
	if len(evs[0].QuickFixes) != 1 {
		t.Errorf("enabled wrapper added %d fixes, want 1", len(evs[0].QuickFixes))
	}
}

func TestWrapper_ForwardsIdentity(t *testing.T) {
	inner := javac.NewParser()
	w := Wrap(inner, Static(true))

	if w.ID() != inner.ID() || w.Priority() != inner.Priority() {
		t.Errorf("wrapper is %s/%d, want %s/%d", w.ID(), w.Priority(), inner.ID(), inner.Priority())
	}
	if w.Unwrap() != parser.Parser(inner) {
		t.Error("Unwrap() does not return the wrapped parser")
	}
}

func TestDecorate_Idempotent(t *testing.T) {
	e := events.New(events.KindError, "g", "boom", "", nil)
	once := Decorate(e, "")
	twice := Decorate(once, "")

	if len(twice.QuickFixes) != 1 {
		t.Errorf("got %d fixes, want 1", len(twice.QuickFixes))
	}
	if len(e.QuickFixes) != 0 {
		t.Error("Decorate() modified its input")
	}
	if once.QuickFixes[0].Command != "" {
		t.Errorf("Command = %q, want empty for untagged output", once.QuickFixes[0].Command)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		taskID string
		want   string
	}{
		{":app:assembleDebug", "./gradlew :app:assembleDebug"},
		{"Task :lib:compileJava", "./gradlew :lib:compileJava"},
		{"", ""},
		{"worker-3", ""},
	}
	for _, tt := range tests {
		t.Run(tt.taskID, func(t *testing.T) {
			if got := Command(tt.taskID); got != tt.want {
				t.Errorf("Command(%q) = %q, want %q", tt.taskID, got, tt.want)
			}
		})
	}
}

type fakeRunner struct {
	prompts []string
}

func (f *fakeRunner) Ask(_ context.Context, prompt string) error {
	f.prompts = append(f.prompts, prompt)
	return nil
}

func TestAsk(t *testing.T) {
	r := &fakeRunner{}
	e := Decorate(events.New(events.KindError, "g", "boom", "details", nil), ":app:build")

	if err := Ask(context.Background(), r, e); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(r.prompts) != 1 || !strings.Contains(r.prompts[0], "details") {
		t.Errorf("prompts = %q", r.prompts)
	}

	warning := events.New(events.KindWarning, "g", "meh", "", nil)
	if err := Ask(context.Background(), r, warning); !errors.Is(err, ErrNoFix) {
		t.Errorf("Ask(warning) error = %v, want ErrNoFix", err)
	}
}
