package databinding

import (
	"testing"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser/parsertest"
)

func TestParser_Records(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantMsg   string
		wantPath  string
		wantStart [2]int
		wantEnd   [2]int
	}{
		{
			name:      "json",
			line:      `[databinding] {"msg":"Cannot find a getter for <TextView android:text> that accepts parameter type 'int'","file":"/p/app/src/main/res/layout/activity_main.xml","pos":[{"line0":22,"col0":36,"line1":22,"col1":47}]}`,
			wantMsg:   "Cannot find a getter for <TextView android:text> that accepts parameter type 'int'",
			wantPath:  "/p/app/src/main/res/layout/activity_main.xml",
			wantStart: [2]int{22, 36},
			wantEnd:   [2]int{22, 47},
		},
		{
			name:      "json negative and missing fields",
			line:      `[databinding] {"msg":"bad pos","file":"/p/a.xml","pos":[{"line0":-3,"col0":2,"line1":4}]}`,
			wantMsg:   "bad pos",
			wantPath:  "/p/a.xml",
			wantStart: [2]int{0, 2},
			wantEnd:   [2]int{4, 0},
		},
		{
			name:      "legacy",
			line:      `****/ data binding error ****msg:Identifiers must have user defined types from the XML file. main_view is missing it file:/p/app/src/main/res/layout/main.xml loc:12:20 - 12:35 ****\ data binding error ****`,
			wantMsg:   "Identifiers must have user defined types from the XML file. main_view is missing it",
			wantPath:  "/p/app/src/main/res/layout/main.xml",
			wantStart: [2]int{12, 20},
			wantEnd:   [2]int{12, 35},
		},
		{
			name:      "legacy end before start",
			line:      `****/ data binding error ****msg:x file:/p/a.xml loc:5:9 - 4:0 ****\ data binding error ****`,
			wantMsg:   "x",
			wantPath:  "/p/a.xml",
			wantStart: [2]int{5, 9},
			wantEnd:   [2]int{5, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := parsertest.Events(NewParser(), nil, tt.line)
			if len(evs) != 1 {
				t.Fatalf("got %d events, want 1", len(evs))
			}
			e := evs[0]
			if e.Headline != tt.wantMsg {
				t.Errorf("Headline = %q, want %q", e.Headline, tt.wantMsg)
			}
			if e.Kind != events.KindError {
				t.Errorf("Kind = %q, want %q", e.Kind, events.KindError)
			}
			if e.Position == nil {
				t.Fatal("Position = nil")
			}
			if e.Position.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", e.Position.Path, tt.wantPath)
			}
			start := [2]int{e.Position.StartLine, e.Position.StartColumn}
			end := [2]int{e.Position.EndLine, e.Position.EndColumn}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("range = %v-%v, want %v-%v", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestParser_SummaryThenRecords(t *testing.T) {
	input := `e: [kapt] An exception occurred: android.databinding.tool.util.LoggedErrorException: Found data binding error(s):

[databinding] {"msg":"first","file":"/p/a.xml","pos":[{"line0":1,"col0":2,"line1":1,"col1":5}]}
[databinding] {"msg":"second","file":"/p/b.xml","pos":[]}
[databinding] {"msg":"third"}`

	res := parsertest.Run(NewParser(), nil, input)
	if len(res.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(res.Events))
	}
	for i, want := range []string{"first", "second", "third"} {
		if res.Events[i].Headline != want {
			t.Errorf("[%d] Headline = %q, want %q", i, res.Events[i].Headline, want)
		}
	}
	if p := res.Events[1].Position; p == nil || p.StartLine != 0 || p.StartColumn != 0 {
		t.Errorf("second Position = %+v, want file start", p)
	}
	if res.Events[2].Position != nil {
		t.Errorf("third Position = %+v, want nil", res.Events[2].Position)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "" {
		t.Errorf("Rejected = %q, want only the blank line", res.Rejected)
	}
}

func TestParser_SeveralLegacyRecordsOnOneLine(t *testing.T) {
	line := `Found data binding errors. ****/ data binding error ****msg:one file:/p/a.xml loc:1:1 - 1:4 ****\ data binding error ****` +
		`****/ data binding error ****msg:two ****\ data binding error ****`

	evs := parsertest.Events(NewParser(), nil, line)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(evs), evs)
	}
	if evs[0].Headline != "one" || evs[1].Headline != "two" {
		t.Errorf("headlines = %q, %q", evs[0].Headline, evs[1].Headline)
	}
	if evs[1].Position != nil {
		t.Errorf("Position = %+v, want nil", evs[1].Position)
	}
}

func TestParser_RejectsMalformed(t *testing.T) {
	input := `[databinding] {"msg":
[databinding] []
[databinding] {"file":"/p/a.xml"}
data binding is enabled`

	res := parsertest.Run(NewParser(), nil, input)
	if len(res.Events) != 0 {
		t.Errorf("got %d events, want 0", len(res.Events))
	}
	if len(res.Rejected) != 4 {
		t.Errorf("rejected %d lines, want 4", len(res.Rejected))
	}
}
