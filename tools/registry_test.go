package tools

import (
	"regexp"
	"testing"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/linesource"
	"github.com/handleui/buildlens/tools/parser"
)

func TestDefaultRegistry_PriorityOrder(t *testing.T) {
	want := []struct {
		id       string
		priority int
	}{
		{"native", 100},
		{"agpbi", 95},
		{"databinding", 90},
		{"javac.deprecation", 85},
		{"catalog", 80},
		{"declarative", 78},
		{"gradle", 70},
		{"kotlin", 60},
		{"javac", 55},
		{"plain", 50},
	}

	got := DefaultRegistry().Parsers()
	if len(got) != len(want) {
		t.Fatalf("got %d parsers, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ID() != w.id || got[i].Priority() != w.priority {
			t.Errorf("parser %d = %s (%d), want %s (%d)", i, got[i].ID(), got[i].Priority(), w.id, w.priority)
		}
	}
}

// stub accepts lines equal to accept and reads ahead read lines, pushing
// back push of them when it rejects.
type stub struct {
	id       string
	priority int
	accept   string
	read     int
	push     int
	calls    int
}

func (s *stub) ID() string    { return s.id }
func (s *stub) Priority() int { return s.priority }

func (s *stub) TryParse(line string, src parser.LineReader, _ *parser.Task, sink parser.Consumer) bool {
	s.calls++
	for i := 0; i < s.read; i++ {
		src.ReadLine()
	}
	if line == s.accept {
		sink.Accept(events.New(events.KindInfo, s.id, line, line, nil))
		return true
	}
	if s.push > 0 {
		src.PushBack(s.push)
	}
	return false
}

func (s *stub) NoisePatterns() parser.NoisePatterns {
	return parser.NoisePatterns{
		FastPrefixes: []string{"NOISE from " + s.id},
		Regex:        []*regexp.Regexp{regexp.MustCompile(`^~+$`)},
	}
}

func TestRegistry_DispatchFirstAcceptWins(t *testing.T) {
	low := &stub{id: "low", priority: 1, accept: "x"}
	high := &stub{id: "high", priority: 9, accept: "x"}

	r := NewRegistry()
	r.Register(low)
	r.Register(high)

	var c events.Collector
	id, ok := r.Dispatch("x", linesource.FromLines(nil), parser.NewTask("", nil), &c)
	if !ok || id != "high" {
		t.Errorf("Dispatch() = %q, %v, want high, true", id, ok)
	}
	if low.calls != 0 {
		t.Errorf("low priority parser called %d times, want 0", low.calls)
	}
	if c.Len() != 1 {
		t.Errorf("got %d events, want 1", c.Len())
	}
}

func TestRegistry_DispatchNoAccept(t *testing.T) {
	r := NewRegistry()
	r.Register(&stub{id: "a", priority: 1, accept: "a", read: 2, push: 2})
	r.Register(&stub{id: "b", priority: 2, accept: "b"})

	src := linesource.FromLines([]string{"next1", "next2"})
	if id, ok := r.Dispatch("z", src, parser.NewTask("", nil), &events.Collector{}); ok {
		t.Errorf("Dispatch() accepted by %q", id)
	}
	if line, _ := src.ReadLine(); line != "next1" {
		t.Errorf("reader at %q, want next1", line)
	}
}

func TestRegistry_DispatchPanicsOnMissingPushBack(t *testing.T) {
	r := NewRegistry()
	r.Register(&stub{id: "leaky", priority: 1, read: 2, push: 1})

	defer func() {
		if recover() == nil {
			t.Error("Dispatch() did not panic")
		}
	}()
	r.Dispatch("z", linesource.FromLines([]string{"a", "b"}), parser.NewTask("", nil), &events.Collector{})
}

func TestRegistry_RegisterTwicePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&stub{id: "a"})

	defer func() {
		if recover() == nil {
			t.Error("Register() did not panic")
		}
	}()
	r.Register(&stub{id: "a"})
}

func TestRegistry_Disable(t *testing.T) {
	r := NewRegistry()
	r.Register(&stub{id: "a", priority: 2, accept: "x"})
	r.Register(&stub{id: "b", priority: 1, accept: "x"})

	if !r.Disable("a") {
		t.Fatal("Disable(a) = false")
	}
	if r.Disable("missing") {
		t.Error("Disable(missing) = true")
	}

	id, ok := r.Dispatch("x", linesource.FromLines(nil), parser.NewTask("", nil), &events.Collector{})
	if !ok || id != "b" {
		t.Errorf("Dispatch() = %q, %v, want b, true", id, ok)
	}
	if len(r.Parsers()) != 1 {
		t.Errorf("Parsers() has %d entries, want 1", len(r.Parsers()))
	}
	if r.IsNoise("NOISE from a") {
		t.Error("disabled parser still contributes noise patterns")
	}
	if !r.IsNoise("noise from b") {
		t.Error("prefix match is not case-insensitive")
	}
}

func TestRegistry_IsNoise(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		line string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"-----------", true},
		{"* Get more help at https://help.gradle.org", true},
		{"BUILD SUCCESSFUL in 3s", true},
		{"> Task :app:preBuild UP-TO-DATE", true},
		{"/src/Main.java:3: error: x", false},
		{"FAILURE: Build failed with an exception.", false},
		{"> Task :app:compileDebugJavaWithJavac", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := r.IsNoise(tt.line); got != tt.want {
				t.Errorf("IsNoise(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

type renamed struct {
	parser.Parser
}

func TestRegistry_Wrap(t *testing.T) {
	r := NewRegistry()
	r.Register(&stub{id: "a", priority: 1, accept: "x"})

	r.Wrap(func(p parser.Parser) parser.Parser { return renamed{p} })

	if _, ok := r.Get("a").(renamed); !ok {
		t.Errorf("Get(a) = %T, want renamed", r.Get("a"))
	}
	if _, ok := r.Parsers()[0].(renamed); !ok {
		t.Errorf("Parsers()[0] = %T, want renamed", r.Parsers()[0])
	}
}

type flushing struct {
	stub
	flushed int
}

func (f *flushing) Flush(_ *parser.Task, sink parser.Consumer) {
	f.flushed++
	sink.Accept(events.New(events.KindInfo, "f", "flushed", "", nil))
}

func TestRegistry_Flush(t *testing.T) {
	f := &flushing{stub: stub{id: "f"}}
	r := NewRegistry()
	r.Register(f)
	r.Register(&stub{id: "g"})

	var c events.Collector
	r.Flush(parser.NewTask("", nil), &c)
	if f.flushed != 1 || c.Len() != 1 {
		t.Errorf("flushed %d times with %d events, want 1 and 1", f.flushed, c.Len())
	}
}
