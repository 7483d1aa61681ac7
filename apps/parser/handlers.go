package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/handleui/buildlens/ci/gradle"
	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/extract"
	"github.com/handleui/buildlens/quickfix"
	"github.com/handleui/buildlens/tools"
	"github.com/handleui/buildlens/workspace"
)

const (
	// SECURITY: Maximum request body size to prevent memory exhaustion DoS.
	maxBodySize = 10 * 1024 * 1024

	// SECURITY: Maximum log string length within the JSON body.
	maxLogsLength = 8 * 1024 * 1024

	// maxSeparatorLength bounds the task tag separator a client may choose.
	maxSeparatorLength = 8

	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
)

// ParseRequest is the request body for POST /parse.
type ParseRequest struct {
	Logs    string        `json:"logs"`
	Context *ParseContext `json:"context,omitempty"`
}

// ParseContext tunes a single parse.
type ParseContext struct {
	// BasePath is the checkout root on the build machine. Relative paths
	// are resolved against it and absolute paths under it are reported
	// relative to it.
	BasePath string `json:"basePath,omitempty"`
	// Separator ends the task tag of each line. Defaults to "|".
	Separator string `json:"separator,omitempty"`
	// MinKind drops events below this severity.
	MinKind string `json:"minKind,omitempty"`
	// AskForHelp attaches the ask-for-help fix to errors. Defaults to true.
	AskForHelp *bool `json:"askForHelp,omitempty"`
}

// ParseResponse is the response body for POST /parse.
type ParseResponse struct {
	Events  []events.Event `json:"events"`
	Summary events.Stats   `json:"summary"`
	Stats   extract.Stats  `json:"stats"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Parsers int    `json:"parsers"`
	Version string `json:"version"`
}

// ErrorResponse is the response body for error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler holds shared state for HTTP handlers.
type Handler struct {
	registry *tools.Registry
	version  string
	logger   *slog.Logger
}

// NewHandler creates a new Handler with the default parser registry.
func NewHandler(version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: tools.DefaultRegistry(),
		version:  version,
		logger:   logger,
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		// SECURITY: build logs may carry secrets; never cache responses.
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware returns middleware that logs request details.
func (h *Handler) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		h.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
		)
	})
}

// HandleHealth handles GET /health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Parsers: len(h.registry.Parsers()),
		Version: h.version,
	})
}

// HandleParse handles POST /parse requests.
func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	// SECURITY: Reject non-JSON bodies. A missing Content-Type is allowed
	// for curl convenience.
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, contentTypeJSON) {
		writeJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{Error: "Content-Type must be application/json"})
		return
	}

	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}
	if len(body) == maxBodySize {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
		return
	}

	var req ParseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// SECURITY: Don't expose parsing details.
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON"})
		return
	}
	if req.Logs == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "logs field is required"})
		return
	}
	if len(req.Logs) > maxLogsLength {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "logs field too large"})
		return
	}

	pc := req.Context
	if pc == nil {
		pc = &ParseContext{}
	}
	minKind, ok := parseKind(pc.MinKind)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "minKind must be INFO, WARNING or ERROR"})
		return
	}
	if len(pc.Separator) > maxSeparatorLength || strings.ContainsAny(pc.Separator, "\r\n") {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid separator"})
		return
	}

	opts := []extract.Option{
		extract.WithLogger(h.logger),
		extract.WithContextParser(gradle.NewContextParserWithSeparator(pc.Separator)),
	}
	// The service never sees the checkout, so paths are joined, not searched.
	if pc.BasePath != "" {
		opts = append(opts, extract.WithWorkspace(workspace.Lexical(pc.BasePath)))
	}

	// Extractors hold no state between runs; one per request is cheap.
	extractor := extract.NewExtractor(h.registry, opts...)
	evs, stats, err := extractor.Extract(r.Context(), req.Logs)
	if err != nil {
		// Only cancellation stops a string read early; the client is gone.
		h.logger.Warn("parse aborted", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "parse aborted"})
		return
	}

	askForHelp := pc.AskForHelp == nil || *pc.AskForHelp
	out := make([]events.Event, 0, len(evs))
	for _, e := range evs {
		if !e.Kind.AtLeast(minKind) {
			continue
		}
		if askForHelp {
			e = quickfix.Decorate(e, e.Task)
		}
		out = append(out, relativeTo(e, pc.BasePath))
	}

	resp := ParseResponse{
		Events:  out,
		Summary: events.Summarize(out),
		Stats:   stats,
	}
	if strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		writeMsgpack(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseKind(s string) (events.Kind, bool) {
	if s == "" {
		return events.KindInfo, true
	}
	switch k := events.Kind(strings.ToUpper(s)); k {
	case events.KindInfo, events.KindWarning, events.KindError:
		return k, true
	}
	return "", false
}

// relativeTo returns e with its path made relative to basePath. The
// position is copied; the extractor's events are never modified.
func relativeTo(e events.Event, basePath string) events.Event {
	if e.Position == nil || basePath == "" {
		return e
	}
	pos := *e.Position
	pos.Path = makeRelative(pos.Path, basePath)
	e.Position = &pos
	return e
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeMsgpack writes a msgpack response keyed like the JSON one.
func writeMsgpack(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	_ = enc.Encode(data)
}

// makeRelative converts an absolute path to relative if it's under basePath.
func makeRelative(path, basePath string) string {
	if basePath == "" {
		return path
	}
	if len(path) > len(basePath) && path[:len(basePath)] == basePath {
		rel := path[len(basePath):]
		if rel != "" && (rel[0] == '/' || rel[0] == '\\') {
			rel = rel[1:]
		}
		return rel
	}
	return path
}
