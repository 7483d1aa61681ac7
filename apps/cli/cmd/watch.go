package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/handleui/buildlens/apps/cli/internal/follow"
	"github.com/handleui/buildlens/apps/cli/internal/output"
	"github.com/handleui/buildlens/apps/cli/internal/signal"
	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/tools/parser"
	"github.com/spf13/cobra"
)

var (
	watchFormat string
	watchIdle   time.Duration
	watchOpts   pipelineOptions
)

var watchCmd = &cobra.Command{
	Use:   "watch <log|->",
	Short: "Classify a build log while it is being written",
	Long: `Follows a growing build log, or stdin with "-", and prints each
diagnostic as soon as it is complete. Stops on Ctrl+C, when the file is
removed, or after --idle without new output.`,
	Example: `  ./gradlew build --console=plain 2>&1 | buildlens watch -
  buildlens watch --idle 5m build.log`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFormat, "output", "o", string(output.FormatText), "output format: text, json, compact, msgpack")
	watchCmd.Flags().DurationVar(&watchIdle, "idle", 0, "stop after this long without new output (0 waits forever)")
	addPipelineFlags(watchCmd, &watchOpts)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(watchFormat)
	if err != nil {
		return err
	}
	extractor, err := newExtractor(appConfig, watchOpts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var src io.Reader = cmd.InOrStdin()
	if args[0] != stdinName {
		r, openErr := follow.Open(ctx, args[0], watchIdle)
		if openErr != nil {
			return openErr
		}
		defer func() { _ = r.Close() }()
		src = r
	}

	textOpts := output.TextOptions{}
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		textOpts = output.DetectText(f)
	}
	sink := &streamSink{stream: output.NewStream(cmd.OutOrStdout(), format, textOpts)}

	stats, err := extractor.Run(ctx, src, sink)
	if err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	if ctx.Err() != nil {
		signal.PrintCancelled(cmd.ErrOrStderr(), "watch")
	}
	if sink.err != nil {
		return fmt.Errorf("writing output: %w", sink.err)
	}

	if format == output.FormatText {
		output.NewText(cmd.OutOrStdout(), textOpts).Summary(sink.summary())
	}
	logger.Info("watch finished", "lines", stats.Lines, "events", stats.Events)
	return nil
}

// streamSink writes events as they arrive and keeps what it needs for
// the closing summary. The first write error stops output.
type streamSink struct {
	mu     sync.Mutex
	stream output.Stream
	seen   []events.Event
	err    error
}

func (s *streamSink) Accept(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, e)
	if s.err == nil {
		s.err = s.stream.Event(e)
	}
}

func (s *streamSink) summary() events.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return events.Summarize(s.seen)
}

var _ parser.Consumer = (*streamSink)(nil)
