// Package sentry reports crashes and unclassified build output patterns.
// Reporting is off unless a DSN is configured, and honors DO_NOT_TRACK.
package sentry

import (
	"context"
	"net/http"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	flushTimeout      = 2 * time.Second
	httpClientTimeout = 10 * time.Second
	maxBreadcrumbs    = 20

	unknownPatternsMessage = "unclassified build output"
)

var (
	homePathPattern = regexp.MustCompile(`(?i)(/home/|/Users/|C:\\Users\\)([^/\\:]+)`)
	apiKeyPattern   = regexp.MustCompile(`(?i)(sk-ant-api\d+-|sk-|api[_-]?key[=:]\s*)([A-Za-z0-9_-]{10,})`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// DSN is injected at build time via ldflags. Empty disables reporting.
var DSN string

// Init initializes the Sentry SDK and returns a cleanup function that
// flushes pending events.
func Init(version string) func() {
	if os.Getenv("DO_NOT_TRACK") == "1" || os.Getenv("BUILDLENS_NO_TELEMETRY") == "1" {
		return func() {}
	}

	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		dsn = DSN
	}
	if dsn == "" {
		return func() {}
	}

	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "buildlens@" + version,
		Environment:      env,
		ServerName:       runtime.GOOS + "-" + runtime.GOARCH,
		AttachStacktrace: true,
		SampleRate:       1.0,
		MaxBreadcrumbs:   maxBreadcrumbs,
		HTTPClient:       &http.Client{Timeout: httpClientTimeout},
		IgnoreErrors: []string{
			"context canceled",
			"context deadline exceeded",
			"signal: interrupt",
			"broken pipe",
		},
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && hint.OriginalException != nil && isCancellation(hint.OriginalException.Error()) {
				return nil
			}
			scrubEvent(event)
			return event
		},
		BeforeBreadcrumb: func(breadcrumb *sentry.Breadcrumb, _ *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			breadcrumb.Message = scrubPII(breadcrumb.Message)
			return breadcrumb
		},
	})
	if err != nil {
		return func() {}
	}

	return func() {
		sentry.Flush(flushTimeout)
	}
}

func isCancellation(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "interrupt") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "terminated")
}

// Enabled reports whether a client is configured.
func Enabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureError reports an error. Safe to call when Sentry is not configured.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// ReportUnknownPatterns sends sanitized lines no parser recognized. Its
// signature matches extract.UnknownPatternReporter.
func ReportUnknownPatterns(patterns []string) {
	if len(patterns) == 0 || !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelInfo)
		scope.SetTag("kind", "unknown-pattern")
		scope.SetExtra("patterns", patterns)
		scope.SetExtra("count", len(patterns))
		sentry.CaptureMessage(unknownPatternsMessage)
	})
}

// RecoverAndPanic recovers from a panic, reports it, then re-panics.
// It must be deferred before the cleanup returned by Init so the flush
// runs first.
func RecoverAndPanic() {
	if r := recover(); r != nil {
		sentry.CurrentHub().RecoverWithContext(context.Background(), r)
		sentry.Flush(flushTimeout)
		panic(r)
	}
}

// AddBreadcrumb adds context for debugging.
func AddBreadcrumb(category, message string) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

// SetTag sets a tag for filtering errors. Values are scrubbed first.
func SetTag(key, value string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(key, scrubPII(value))
	})
}

func scrubPII(s string) string {
	s = homePathPattern.ReplaceAllString(s, "${1}[user]")
	s = apiKeyPattern.ReplaceAllString(s, "${1}[REDACTED]")
	return emailPattern.ReplaceAllString(s, "[email]")
}

func scrubEvent(event *sentry.Event) {
	event.Message = scrubPII(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
		if event.Exception[i].Stacktrace == nil {
			continue
		}
		for j := range event.Exception[i].Stacktrace.Frames {
			frame := &event.Exception[i].Stacktrace.Frames[j]
			frame.AbsPath = scrubPII(frame.AbsPath)
			frame.Filename = scrubPII(frame.Filename)
		}
	}

	for i := range event.Breadcrumbs {
		event.Breadcrumbs[i].Message = scrubPII(event.Breadcrumbs[i].Message)
	}

	for key, value := range event.Extra {
		switch v := value.(type) {
		case string:
			event.Extra[key] = scrubPII(v)
		case []string:
			scrubbed := make([]string, len(v))
			for i, s := range v {
				scrubbed[i] = scrubPII(s)
			}
			event.Extra[key] = scrubbed
		}
	}

	for key, value := range event.Tags {
		event.Tags[key] = scrubPII(value)
	}
}
