package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/handleui/buildlens/apps/cli/internal/assist"
	"github.com/handleui/buildlens/apps/cli/internal/output"
	"github.com/handleui/buildlens/apps/cli/internal/signal"
	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/extract"
	"github.com/handleui/buildlens/quickfix"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ErrProblemsFound is returned with --exit-code when errors were reported.
var ErrProblemsFound = errors.New("build errors found")

const stdinName = "-"

var (
	outputFormat string
	minKind      string
	snippets     bool
	exitCode     bool
	askLimit     int
	noAsk        bool
	parseOpts    pipelineOptions
)

var parseCmd = &cobra.Command{
	Use:   "parse [log...]",
	Short: "Classify saved build logs",
	Long: `Reads one or more build logs, or stdin when none is given, and reports
the diagnostics they contain. Logs are classified in parallel.

With --ask, the first errors are sent to Claude together with the command
that reruns the failing task, and the answers are printed after the report.`,
	Example: `  ./gradlew assembleDebug 2>&1 | buildlens parse
  buildlens parse -o json build.log
  buildlens parse --ask --snippets ci-*.log`,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&outputFormat, "output", "o", string(output.FormatText), "output format: text, json, compact, msgpack")
	parseCmd.Flags().StringVar(&minKind, "min-kind", string(events.KindInfo), "lowest severity to report: INFO, WARNING, ERROR")
	parseCmd.Flags().BoolVar(&snippets, "snippets", false, "show source around each diagnostic (text output)")
	parseCmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with status 2 when errors are found")
	parseCmd.Flags().IntVar(&askLimit, "ask", 0, "ask Claude about the first N errors")
	parseCmd.Flags().Lookup("ask").NoOptDefVal = "1"
	parseCmd.Flags().BoolVar(&noAsk, "no-ask", false, "do not attach ask-for-help fixes to errors")
	addPipelineFlags(parseCmd, &parseOpts)
}

func addPipelineFlags(cmd *cobra.Command, opts *pipelineOptions) {
	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", "", "project root for resolving relative paths (default: project file or current directory)")
	cmd.Flags().StringSliceVar(&opts.disable, "disable", nil, "parser IDs to turn off")
}

func runParse(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	threshold, err := parseKind(minKind)
	if err != nil {
		return err
	}
	if askLimit > 0 && noAsk {
		return errors.New("--ask and --no-ask cannot be combined")
	}

	opts := parseOpts
	opts.noAsk = noAsk
	opts.forceAsk = askLimit > 0
	extractor, err := newExtractor(appConfig, opts)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{stdinName}
	}

	ctx := cmd.Context()
	reports, err := classifyAll(ctx, extractor, args, cmd.InOrStdin())
	if err != nil {
		if ctx.Err() != nil {
			signal.PrintCancelled(cmd.ErrOrStderr(), "parse")
		}
		return err
	}

	for _, r := range reports {
		r.Events = events.Filter(r.Events, events.FilterByKind(threshold))
		r.Summary = events.Summarize(r.Events)
	}

	textOpts := output.TextOptions{}
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		textOpts = output.DetectText(f)
	}
	textOpts.Snippets = snippets
	if err := output.Write(cmd.OutOrStdout(), format, reports, textOpts); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if askLimit > 0 {
		if err := askAbout(ctx, cmd.OutOrStdout(), reports, askLimit); err != nil {
			return err
		}
	}

	if exitCode {
		for _, r := range reports {
			if events.HasErrors(r.Events) {
				return ErrProblemsFound
			}
		}
	}
	return nil
}

// classifyAll runs one extraction per source in parallel. Reports keep the
// order of names.
func classifyAll(ctx context.Context, extractor *extract.Extractor, names []string, stdin io.Reader) ([]*output.Report, error) {
	reports := make([]*output.Report, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, name := range names {
		g.Go(func() error {
			r, closeFn, err := openSource(name, stdin)
			if err != nil {
				return err
			}
			defer closeFn()

			var c events.Collector
			stats, err := extractor.Run(gctx, r, &c)
			if err != nil {
				return fmt.Errorf("%s: %w", displayName(name), err)
			}
			reports[i] = output.NewReport(displayName(name), c.Events(), stats)
			logger.Debug("log classified", "source", displayName(name), "events", stats.Events, "unclassified", stats.Unclassified)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func openSource(name string, stdin io.Reader) (io.Reader, func(), error) {
	if name == stdinName {
		return stdin, func() {}, nil
	}
	// #nosec G304 - the user names the logs to read
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func displayName(name string) string {
	if name == stdinName {
		return "stdin"
	}
	return name
}

func parseKind(s string) (events.Kind, error) {
	switch k := events.Kind(strings.ToUpper(s)); k {
	case events.KindInfo, events.KindWarning, events.KindError:
		return k, nil
	}
	return "", fmt.Errorf("invalid severity %q: must be INFO, WARNING or ERROR", s)
}

// askAbout sends the prompts of the first limit errors to Claude.
func askAbout(ctx context.Context, w io.Writer, reports []*output.Report, limit int) error {
	runner, err := assist.New(appConfig.APIKey.Value, appConfig.Model.Value, appConfig.Timeout.Value, w)
	if err != nil {
		return err
	}

	asked := 0
	for _, r := range reports {
		for _, e := range r.Events {
			if asked >= limit {
				return nil
			}
			if !quickfix.HasAskForHelp(e) {
				continue
			}
			asked++
			_, _ = fmt.Fprintf(w, "\n%s %s\n\n", brandingStyle.Render("?"), e.Headline)
			if err := quickfix.Ask(ctx, runner, e); err != nil {
				return fmt.Errorf("asking about %q: %w", e.Headline, err)
			}
		}
	}
	if asked == 0 {
		_, _ = fmt.Fprintln(w, contextStyle.Render("No errors to ask about."))
	}
	return nil
}
