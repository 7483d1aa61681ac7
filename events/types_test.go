package events

import "testing"

func TestCompilerPosition(t *testing.T) {
	tests := []struct {
		name       string
		line, col  int
		wantLine   int
		wantColumn int
	}{
		{name: "line and column", line: 12, col: 10, wantLine: 11, wantColumn: 9},
		{name: "missing column", line: 33, col: 0, wantLine: 32, wantColumn: 0},
		{name: "first character", line: 1, col: 1, wantLine: 0, wantColumn: 0},
		{name: "zero line clamps", line: 0, col: 0, wantLine: 0, wantColumn: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := CompilerPosition("/src/a.cpp", tt.line, tt.col)
			if pos.StartLine != tt.wantLine || pos.StartColumn != tt.wantColumn {
				t.Errorf("start = (%d,%d), want (%d,%d)", pos.StartLine, pos.StartColumn, tt.wantLine, tt.wantColumn)
			}
			if pos.EndLine != pos.StartLine || pos.EndColumn != pos.StartColumn {
				t.Errorf("end = (%d,%d), want same as start", pos.EndLine, pos.EndColumn)
			}
		})
	}
}

func TestNew_DescriptionFallsBackToHeadline(t *testing.T) {
	e := New(KindError, "Java compiler", "cannot find symbol", "", nil)
	if e.Description != "cannot find symbol" {
		t.Errorf("Description = %q, want headline", e.Description)
	}
	if e.ID == "" {
		t.Error("ID is empty")
	}
	other := New(KindError, "Java compiler", "cannot find symbol", "", nil)
	if other.ID == e.ID {
		t.Error("two events share an ID")
	}
}

func TestWithQuickFix_DoesNotAlias(t *testing.T) {
	base := New(KindError, "g", "h", "d", nil)
	base = base.WithQuickFix(QuickFix{ID: "first"})

	a := base.WithQuickFix(QuickFix{ID: "a"})
	b := base.WithQuickFix(QuickFix{ID: "b"})

	if len(base.QuickFixes) != 1 {
		t.Fatalf("base has %d fixes, want 1", len(base.QuickFixes))
	}
	if a.QuickFixes[1].ID != "a" || b.QuickFixes[1].ID != "b" {
		t.Errorf("copies alias each other: a=%q b=%q", a.QuickFixes[1].ID, b.QuickFixes[1].ID)
	}
}

func TestKind_AtLeast(t *testing.T) {
	tests := []struct {
		k, other Kind
		want     bool
	}{
		{KindError, KindWarning, true},
		{KindWarning, KindError, false},
		{KindInfo, KindInfo, true},
		{KindWarning, KindInfo, true},
	}
	for _, tt := range tests {
		if got := tt.k.AtLeast(tt.other); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.k, tt.other, got, tt.want)
		}
	}
}
