// Package extract drives the parser chain over a tagged build log.
//
// Lines are routed to their task by tag. Each task owns a line source, a
// native output classifier and its tracker state, so interleaved output of
// concurrent Gradle tasks never mixes.
package extract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/handleui/buildlens/ci"
	"github.com/handleui/buildlens/ci/gradle"
	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/linesource"
	"github.com/handleui/buildlens/progress"
	"github.com/handleui/buildlens/tools"
	"github.com/handleui/buildlens/tools/generic"
	"github.com/handleui/buildlens/tools/native"
	"github.com/handleui/buildlens/tools/parser"
	"github.com/handleui/buildlens/tracker"
)

const (
	maxLineLength  = 65536   // 64KB per line - prevents ReDoS on extremely long lines
	maxScanLength  = 1 << 20 // longer lines abort the scan
	initialScanBuf = 64 * 1024
)

// Stats describes one run.
type Stats struct {
	Lines        int            `json:"lines"`
	Tasks        int            `json:"tasks"`
	Events       int            `json:"events"`
	Noise        int            `json:"noise"`
	Skipped      int            `json:"skipped"`
	Unclassified int            `json:"unclassified"`
	ByParser     map[string]int `json:"byParser,omitempty"`
	// UnknownPatterns holds sanitized candidate diagnostics no parser
	// accepted.
	UnknownPatterns []string `json:"unknownPatterns,omitempty"`
}

// Extractor classifies build logs into events.
//
// An Extractor holds no state between runs; Run may be called concurrently
// as long as the registry is not modified meanwhile.
type Extractor struct {
	registry  *tools.Registry
	logger    *slog.Logger
	workspace tracker.Workspace
	ctxParser ci.ContextParser
	reporter  progress.Reporter
	unknown   UnknownPatternReporter
	detector  *generic.Detector
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger. A nil logger discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l == nil {
			l = slog.New(slog.DiscardHandler)
		}
		e.logger = l
	}
}

// WithWorkspace sets the collaborator used to resolve paths of tasks that
// printed no directory marker.
func WithWorkspace(ws tracker.Workspace) Option {
	return func(e *Extractor) { e.workspace = ws }
}

// WithContextParser replaces the Gradle task tag parser.
func WithContextParser(p ci.ContextParser) Option {
	return func(e *Extractor) {
		if p != nil {
			e.ctxParser = p
		}
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r progress.Reporter) Option {
	return func(e *Extractor) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithUnknownPatternReporter overrides DefaultUnknownPatternReporter.
func WithUnknownPatternReporter(r UnknownPatternReporter) Option {
	return func(e *Extractor) { e.unknown = r }
}

// NewExtractor creates an extractor over registry. A nil registry selects
// tools.DefaultRegistry.
func NewExtractor(registry *tools.Registry, opts ...Option) *Extractor {
	if registry == nil {
		registry = tools.DefaultRegistry()
	}
	e := &Extractor{
		registry:  registry,
		logger:    slog.New(slog.DiscardHandler),
		ctxParser: gradle.NewContextParser(),
		reporter:  progress.NoOp{},
		unknown:   DefaultUnknownPatternReporter,
		detector:  generic.NewDetector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract classifies output and returns the events in emission order.
func (e *Extractor) Extract(ctx context.Context, output string) ([]events.Event, Stats, error) {
	var c events.Collector
	stats, err := e.Run(ctx, strings.NewReader(output), &c)
	return c.Events(), stats, err
}

// Run reads r to the end and delivers events to sink as they complete.
//
// At end of input, or when ctx is cancelled, every task is drained and
// flushed so diagnostics already read are still delivered. The returned
// error is the cancellation cause or a read error.
func (e *Extractor) Run(ctx context.Context, r io.Reader, sink parser.Consumer) (Stats, error) {
	start := time.Now()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialScanBuf), maxScanLength)

	rn := &run{
		e:           e,
		ctx:         ctx,
		scanner:     scanner,
		sink:        sink,
		tasks:       make(map[string]*taskState),
		seenUnknown: make(map[string]struct{}),
		stats:       Stats{ByParser: make(map[string]int)},
	}
	rn.loop()
	rn.finish()

	stats := rn.stats
	stats.Tasks = len(rn.order)
	stats.UnknownPatterns = rn.unknown

	if len(rn.unknown) > 0 && e.unknown != nil {
		e.unknown(rn.unknown)
	}

	duration := time.Since(start)
	if rn.err != nil {
		err := fmt.Errorf("extract: %w", rn.err)
		e.logger.Warn("extraction stopped early", "error", rn.err, "lines", stats.Lines, "events", stats.Events)
		e.reporter.OnError(err)
		return stats, err
	}

	e.logger.Debug("extraction complete",
		"lines", stats.Lines,
		"tasks", stats.Tasks,
		"events", stats.Events,
		"unclassified", stats.Unclassified,
		"duration", duration)
	e.reporter.OnComplete(stats.Lines, stats.Events, duration)
	return stats, nil
}

// taskState is everything owned by one task.
type taskState struct {
	task       *parser.Task
	src        *linesource.Source
	classifier *native.Classifier
	sink       parser.Consumer
}

// run is one pass over a stream.
type run struct {
	e       *Extractor
	ctx     context.Context
	scanner *bufio.Scanner
	sink    parser.Consumer

	eof bool
	err error

	tasks map[string]*taskState
	order []*taskState // creation order, for flushing

	// slots holds one entry per routed line, in stream order. A slot whose
	// task has nothing buffered was consumed as lookahead.
	slots []*taskState

	stats       Stats
	unknown     []string
	seenUnknown map[string]struct{}
}

func (r *run) loop() {
	for {
		if err := r.ctx.Err(); err != nil {
			r.stop(err)
			return
		}
		if len(r.slots) == 0 && !r.fill() {
			return
		}
		ts := r.slots[0]
		r.slots[0] = nil
		r.slots = r.slots[1:]

		line, ok := ts.src.ReadBuffered()
		if !ok {
			continue
		}
		r.process(ts, line)
	}
}

// fill reads global lines until one is routed to a task. It is the fill
// function of every task source, so a parser reading lookahead on one task
// may route lines to others.
func (r *run) fill() bool {
	for !r.eof {
		if err := r.ctx.Err(); err != nil {
			r.stop(err)
			return false
		}
		if !r.scanner.Scan() {
			r.stop(r.scanner.Err())
			return false
		}
		r.stats.Lines++

		raw := r.scanner.Text()
		if len(raw) > maxLineLength {
			r.stats.Skipped++
			continue
		}

		lc, cleaned, skip := r.e.ctxParser.ParseLine(parser.CleanLine(raw))
		if skip {
			r.stats.Noise++
			continue
		}

		id := ci.DefaultTask
		if lc != nil {
			id = lc.Task
		}
		ts := r.taskFor(id)
		ts.src.Append(native.StripPrefix(cleaned))
		r.slots = append(r.slots, ts)
		return true
	}
	return false
}

func (r *run) stop(err error) {
	r.eof = true
	if err != nil && r.err == nil {
		r.err = err
	}
}

func (r *run) taskFor(id string) *taskState {
	if ts, ok := r.tasks[id]; ok {
		return ts
	}
	ts := &taskState{
		task:       parser.NewTask(id, r.e.workspace),
		src:        linesource.New(r.fill, linesource.DefaultMaxHistory),
		classifier: native.NewClassifier(),
	}
	ts.sink = parser.ConsumerFunc(func(ev events.Event) { r.emit(ts, ev) })
	r.tasks[id] = ts
	r.order = append(r.order, ts)
	r.e.reporter.OnTaskStart(id)
	return ts
}

// process handles one line of a task. Native tasks feed the classifier
// first; lines it holds back reach the chain later as a message. Of the
// lines it leaves idle, only structural markers reach the chain.
func (r *run) process(ts *taskState, line string) {
	task := ts.task
	if task.State.Native || tracker.IsEnteringDirectory(line) {
		msgs := ts.classifier.Consume(task.State, line)
		task.State = tracker.Reduce(task.State, line)
		for _, m := range msgs {
			r.dispatchMessage(ts, m)
		}
		if ts.classifier.Phase() == native.Accumulating {
			return
		}
		if !tracker.IsStructuralMarker(line) {
			r.stats.Noise++
			return
		}
	} else {
		task.State = tracker.Reduce(task.State, line)
	}

	if r.e.registry.IsNoise(line) {
		r.stats.Noise++
		return
	}
	r.dispatch(ts, line, ts.src)
}

// dispatchMessage offers a classified message to the chain with the task
// context captured when the message began.
func (r *run) dispatchMessage(ts *taskState, m native.RawMessage) {
	src := linesource.FromLines(m.All())
	ts.task.BeginMessage(m.Context)
	defer ts.task.EndMessage()

	for {
		line, ok := src.ReadLine()
		if !ok {
			return
		}
		r.dispatch(ts, line, src)
	}
}

func (r *run) dispatch(ts *taskState, line string, src parser.LineReader) {
	if id, ok := r.e.registry.Dispatch(line, src, ts.task, ts.sink); ok {
		r.stats.ByParser[id]++
		return
	}
	r.unclassified(ts, line)
}

func (r *run) unclassified(ts *taskState, line string) {
	r.stats.Unclassified++
	if !r.e.detector.IsCandidate(line) {
		return
	}
	r.e.logger.Debug("not classified", "task", ts.task.ID, "line", line)

	if len(r.unknown) >= maxUnknownPatternsToReport {
		return
	}
	pattern := SanitizePatternForTelemetry(line)
	if _, seen := r.seenUnknown[pattern]; seen {
		return
	}
	r.seenUnknown[pattern] = struct{}{}
	r.unknown = append(r.unknown, pattern)
}

func (r *run) emit(ts *taskState, ev events.Event) {
	if ev.Task == "" && ts.task.ID != ci.DefaultTask {
		ev = ev.WithTask(ts.task.ID)
	}
	r.stats.Events++
	r.e.reporter.OnEvent(ev)
	r.sink.Accept(ev)
}

// finish drains and flushes every task in creation order.
func (r *run) finish() {
	r.eof = true
	for _, ts := range r.order {
		for {
			line, ok := ts.src.ReadBuffered()
			if !ok {
				break
			}
			r.process(ts, line)
		}
		for _, m := range ts.classifier.Flush() {
			r.dispatchMessage(ts, m)
		}
		r.e.registry.Flush(ts.task, ts.sink)
	}
	r.slots = nil
}
