package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/handleui/buildlens/apps/cli/cmd"
	"github.com/handleui/buildlens/apps/cli/internal/sentry"
	"github.com/handleui/buildlens/extract"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer sentry.RecoverAndPanic()
	cleanup := sentry.Init(cmd.Version)
	defer cleanup()

	extract.DefaultUnknownPatternReporter = sentry.ReportUnknownPatterns

	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrProblemsFound) {
			return 2
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		sentry.CaptureError(err)
		return 1
	}
	return 0
}
