// Package logging builds the CLI's structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
)

// Format names a handler.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to w at level. Diagnostics go to stderr so
// they never mix with command output.
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", format)
}
