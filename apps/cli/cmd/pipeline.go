package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/handleui/buildlens/apps/cli/internal/config"
	"github.com/handleui/buildlens/apps/cli/internal/sentry"
	"github.com/handleui/buildlens/ci/gradle"
	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/extract"
	"github.com/handleui/buildlens/progress"
	"github.com/handleui/buildlens/quickfix"
	"github.com/handleui/buildlens/tools"
	"github.com/handleui/buildlens/workspace"
)

// pipelineOptions are the flags shared by parse and watch.
type pipelineOptions struct {
	workspace string
	disable   []string
	noAsk     bool
	// forceAsk attaches fixes even when the config turns them off.
	forceAsk bool
}

// newExtractor assembles the parser chain from the configuration and flags.
func newExtractor(cfg *config.Config, opts pipelineOptions) (*extract.Extractor, error) {
	registry := tools.DefaultRegistry()

	disabled := append(append([]string{}, cfg.Project.DisableParsers...), opts.disable...)
	for _, id := range disabled {
		if !registry.Disable(id) {
			return nil, fmt.Errorf("unknown parser %q (known: %s)", id, parserIDs(registry))
		}
	}

	ask := (cfg.AskForHelp.Value || opts.forceAsk) && !opts.noAsk
	registry.Wrap(quickfix.Wrapping(quickfix.Static(ask)))

	root := opts.workspace
	if root == "" {
		root = cfg.Project.Workspace
	}
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}

	extractorOpts := []extract.Option{
		extract.WithLogger(logger),
		extract.WithWorkspace(workspace.New(root)),
		extract.WithReporter(&logReporter{logger: logger}),
	}
	if sep := cfg.Project.TagSeparator; sep != "" {
		extractorOpts = append(extractorOpts, extract.WithContextParser(gradle.NewContextParserWithSeparator(sep)))
	}

	logger.Debug("pipeline ready",
		"workspace", root,
		"disabled", disabled,
		"ask_for_help", ask)
	sentry.AddBreadcrumb("pipeline", fmt.Sprintf("%d parsers", len(registry.Parsers())))

	return extract.NewExtractor(registry, extractorOpts...), nil
}

func parserIDs(r *tools.Registry) string {
	parsers := r.Parsers()
	ids := make([]string, len(parsers))
	for i, p := range parsers {
		ids[i] = p.ID()
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}

// logReporter turns extraction progress into debug logs.
type logReporter struct {
	logger *slog.Logger
}

func (r *logReporter) OnTaskStart(task string) {
	if task == "" {
		task = "(untagged)"
	}
	r.logger.Debug("task started", "task", task)
}

func (r *logReporter) OnEvent(e events.Event) {
	r.logger.Debug("event", "kind", e.Kind, "group", e.Group, "headline", e.Headline)
}

func (r *logReporter) OnComplete(lines, emitted int, duration time.Duration) {
	r.logger.Info("classified", "lines", lines, "events", emitted, "duration", duration)
}

func (r *logReporter) OnError(err error) {
	r.logger.Warn("classification stopped", "error", err)
}

var _ progress.Reporter = (*logReporter)(nil)
