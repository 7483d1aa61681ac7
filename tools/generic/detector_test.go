package generic

import "testing"

func TestDetector_IsCandidate(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"error: unexpected end of file while parsing", true},
		{"FATAL: could not open the repository", true},
		{"[ERROR] something went sideways", true},
		{"Compilation failed", true},
		{"/src/app/Main.kt:12:5: something odd", true},
		{`Exception in thread "main" java.lang.IllegalStateException`, true},
		{"Caused by: java.io.IOException: Broken pipe", true},
		{"Process 'command 'node'' exited with code 2", true},

		{"error", false},
		{"> Task :app:compileDebugKotlin UP-TO-DATE", false},
		{"BUILD SUCCESSFUL in 4s", false},
		{"\tat org.gradle.Main.run(Main.java:12)", false},
		{"    ... 42 more", false},
		{"the operation failed for an unknown reason", false},
		{"Download https://repo.maven.apache.org/maven2/error/1.0/error-1.0.pom", false},
		{"--------------------", false},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := d.IsCandidate(tt.line); got != tt.want {
				t.Errorf("IsCandidate(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestDetector_NoisePatterns(t *testing.T) {
	np := NewDetector().NoisePatterns()
	if len(np.FastPrefixes) == 0 || len(np.Regex) == 0 {
		t.Fatal("NoisePatterns() is empty")
	}
	for _, p := range np.FastPrefixes {
		for _, r := range p {
			if r >= 'A' && r <= 'Z' {
				t.Errorf("prefix %q is not lowercase", p)
				break
			}
		}
	}
}
