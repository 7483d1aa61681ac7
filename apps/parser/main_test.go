package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/handleui/buildlens/events"
	"github.com/handleui/buildlens/quickfix"
)

const kotlinLog = `:app:compileDebugKotlin|e: file:///work/app/src/main/java/Main.kt:12:5 Unresolved reference 'foo'.
:app:compileDebugKotlin|w: file:///work/app/src/main/java/Util.kt:3:1 Parameter 'x' is never used
:app:compileDebugKotlin|e: file:///work/app/src/main/java/Main.kt:20:9 Type mismatch: inferred type is String but Int was expected
`

func postParse(t *testing.T, h *Handler, req ParseRequest, accept string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.HandleParse(w, r)
	return w
}

func decodeParse(t *testing.T, w *httptest.ResponseRecorder) ParseResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ParseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler("1.0.0", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	w := httptest.NewRecorder()
	handler.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", resp.Version)
	}
	if resp.Parsers != 10 {
		t.Errorf("expected 10 parsers, got %d", resp.Parsers)
	}
}

func TestParseEndpoint_ValidInput(t *testing.T) {
	handler := NewHandler("1.0.0", nil)

	t.Run("kotlin diagnostics", func(t *testing.T) {
		resp := decodeParse(t, postParse(t, handler, ParseRequest{Logs: kotlinLog}, ""))

		if len(resp.Events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(resp.Events))
		}
		first := resp.Events[0]
		if first.Kind != events.KindError {
			t.Errorf("expected kind ERROR, got %q", first.Kind)
		}
		if first.Task != ":app:compileDebugKotlin" {
			t.Errorf("expected task ':app:compileDebugKotlin', got %q", first.Task)
		}
		if first.Position == nil || first.Position.Path != "/work/app/src/main/java/Main.kt" || first.Position.StartLine != 11 {
			t.Errorf("unexpected position %+v", first.Position)
		}
		if resp.Summary.Errors != 2 || resp.Summary.Warnings != 1 || resp.Summary.Files != 2 {
			t.Errorf("unexpected summary %+v", resp.Summary)
		}
		if resp.Stats.ByParser["kotlin"] != 3 || resp.Stats.Tasks != 1 {
			t.Errorf("unexpected stats %+v", resp.Stats)
		}
	})

	t.Run("errors carry ask-for-help by default", func(t *testing.T) {
		resp := decodeParse(t, postParse(t, handler, ParseRequest{Logs: kotlinLog}, ""))

		for _, e := range resp.Events {
			if got := quickfix.HasAskForHelp(e); got != (e.Kind == events.KindError) {
				t.Errorf("%s event has ask-for-help = %v", e.Kind, got)
			}
		}
	})

	t.Run("untagged output", func(t *testing.T) {
		logs := "e: file:///src/Main.kt:1:1 Unresolved reference 'x'.\n"
		resp := decodeParse(t, postParse(t, handler, ParseRequest{Logs: logs}, ""))

		if len(resp.Events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(resp.Events))
		}
		if resp.Events[0].Task != "" {
			t.Errorf("expected no task, got %q", resp.Events[0].Task)
		}
	})
}

func TestParseEndpoint_Context(t *testing.T) {
	handler := NewHandler("1.0.0", nil)

	t.Run("basePath makes paths relative", func(t *testing.T) {
		req := ParseRequest{Logs: kotlinLog, Context: &ParseContext{BasePath: "/work"}}
		resp := decodeParse(t, postParse(t, handler, req, ""))

		if got := resp.Events[0].File(); got != "app/src/main/java/Main.kt" {
			t.Errorf("expected relative path, got %q", got)
		}
	})

	t.Run("minKind filters events", func(t *testing.T) {
		req := ParseRequest{Logs: kotlinLog, Context: &ParseContext{MinKind: "error"}}
		resp := decodeParse(t, postParse(t, handler, req, ""))

		if len(resp.Events) != 2 {
			t.Errorf("expected 2 events, got %d", len(resp.Events))
		}
		if resp.Summary.Warnings != 0 {
			t.Errorf("expected summary without warnings, got %d", resp.Summary.Warnings)
		}
		if resp.Stats.Events != 3 {
			t.Errorf("expected extraction stats to count 3 events, got %d", resp.Stats.Events)
		}
	})

	t.Run("askForHelp false", func(t *testing.T) {
		off := false
		req := ParseRequest{Logs: kotlinLog, Context: &ParseContext{AskForHelp: &off}}
		resp := decodeParse(t, postParse(t, handler, req, ""))

		for _, e := range resp.Events {
			if len(e.QuickFixes) != 0 {
				t.Errorf("expected no quick fixes, got %+v", e.QuickFixes)
			}
		}
	})

	t.Run("custom separator", func(t *testing.T) {
		logs := strings.ReplaceAll(kotlinLog, "|", "#")
		req := ParseRequest{Logs: logs, Context: &ParseContext{Separator: "#"}}
		resp := decodeParse(t, postParse(t, handler, req, ""))

		if len(resp.Events) != 3 || resp.Events[0].Task != ":app:compileDebugKotlin" {
			t.Errorf("expected 3 tagged events, got %+v", resp.Events)
		}
	})
}

func TestParseEndpoint_Msgpack(t *testing.T) {
	handler := NewHandler("1.0.0", nil)

	w := postParse(t, handler, ParseRequest{Logs: kotlinLog}, "application/msgpack")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/msgpack" {
		t.Errorf("expected msgpack content type, got %q", got)
	}

	var resp map[string]any
	if err := msgpack.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode msgpack: %v", err)
	}
	evs, ok := resp["events"].([]any)
	if !ok || len(evs) != 3 {
		t.Errorf("expected 3 events under 'events', got %v", resp["events"])
	}
}

func TestParseEndpoint_EdgeCases(t *testing.T) {
	handler := NewHandler("1.0.0", nil)

	t.Run("blank logs return no events", func(t *testing.T) {
		w := postParse(t, handler, ParseRequest{Logs: "   \n\n   "}, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if !gjson.Get(w.Body.String(), "events").IsArray() {
			t.Errorf("expected events to be an array, got %s", w.Body.String())
		}
		if got := gjson.Get(w.Body.String(), "summary.total").Int(); got != 0 {
			t.Errorf("expected total 0, got %d", got)
		}
	})

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
		wantError   string
	}{
		{"wrong method", http.MethodGet, "", "", http.StatusMethodNotAllowed, "method not allowed"},
		{"wrong content type", http.MethodPost, "text/plain", `{"logs":"x"}`, http.StatusUnsupportedMediaType, "Content-Type must be application/json"},
		{"malformed JSON", http.MethodPost, "application/json", `{not valid json}`, http.StatusBadRequest, "invalid JSON"},
		{"missing logs", http.MethodPost, "application/json", `{"context":{"basePath":"/w"}}`, http.StatusBadRequest, "logs field is required"},
		{"bad minKind", http.MethodPost, "application/json", `{"logs":"x","context":{"minKind":"fatal"}}`, http.StatusBadRequest, "minKind must be INFO, WARNING or ERROR"},
		{"bad separator", http.MethodPost, "application/json", `{"logs":"x","context":{"separator":"\n"}}`, http.StatusBadRequest, "invalid separator"},
		{"charset suffix accepted", http.MethodPost, "application/json; charset=utf-8", `{"logs":"x"}`, http.StatusOK, ""},
		{"missing content type accepted", http.MethodPost, "", `{"logs":"x"}`, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/parse", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()

			handler.HandleParse(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantError == "" {
				return
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, resp.Error)
			}
		})
	}

	t.Run("oversized body returns 413", func(t *testing.T) {
		body := bytes.Repeat([]byte("a"), maxBodySize)
		req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.HandleParse(w, req)

		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status 413, got %d", w.Code)
		}
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewHandler("1.0.0", nil)
	mux := newMux(handler)

	for _, path := range []string{"/health", "/parse"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			headers := map[string]string{
				"X-Content-Type-Options": "nosniff",
				"X-Frame-Options":        "DENY",
				"X-XSS-Protection":       "1; mode=block",
				"Cache-Control":          "no-store",
			}
			for header, expected := range headers {
				if got := w.Header().Get(header); got != expected {
					t.Errorf("expected %s header %q, got %q", header, expected, got)
				}
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := NewHandler("1.0.0", nil)

	t.Run("captures status", func(t *testing.T) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
		w := httptest.NewRecorder()

		handler.LoggingMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

		if w.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", w.Code)
		}
	})

	t.Run("defaults to 200", func(t *testing.T) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})
		w := httptest.NewRecorder()

		handler.LoggingMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})
}

func TestMakeRelative(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		basePath string
		want     string
	}{
		{"empty basePath", "/foo/Main.kt", "", "/foo/Main.kt"},
		{"matching prefix", "/workspace/app/Main.kt", "/workspace", "app/Main.kt"},
		{"non-matching prefix", "/other/app/Main.kt", "/workspace", "/other/app/Main.kt"},
		{"exact match", "/workspace", "/workspace", "/workspace"},
		{"trailing slash base", "/workspace/app/Main.kt", "/workspace/", "app/Main.kt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := makeRelative(tt.path, tt.basePath); got != tt.want {
				t.Errorf("makeRelative(%q, %q) = %q, want %q", tt.path, tt.basePath, got, tt.want)
			}
		})
	}
}

func TestRelativeToCopiesPosition(t *testing.T) {
	pos := events.Position("/work/app/Main.kt", 1, 1)
	e := events.New(events.KindError, "g", "h", "", pos)

	got := relativeTo(e, "/work")

	if got.File() != "app/Main.kt" {
		t.Errorf("File() = %q, want %q", got.File(), "app/Main.kt")
	}
	if pos.Path != "/work/app/Main.kt" {
		t.Errorf("original position modified: %q", pos.Path)
	}
}
