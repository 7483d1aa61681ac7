// Package follow reads a log file that is still being written.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval re-checks the file when the platform drops write events.
const pollInterval = 500 * time.Millisecond

// Reader is an io.Reader over a growing file. At end of file it waits for
// more data instead of returning io.EOF. It reports io.EOF once the context
// is cancelled, the file is removed or renamed, or no data arrived for the
// idle duration.
type Reader struct {
	ctx     context.Context
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	idle    time.Duration
	offset  int64
}

// Open starts following path from its beginning. An idle duration of 0
// waits forever.
func Open(ctx context.Context, path string, idle time.Duration) (*Reader, error) {
	// #nosec G304 - the user names the log to follow
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		_ = f.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	return &Reader{ctx: ctx, path: path, file: f, watcher: w, idle: idle}, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	var idle <-chan time.Time
	if r.idle > 0 {
		timer := time.NewTimer(r.idle)
		defer timer.Stop()
		idle = timer.C
	}
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		n, err := r.file.Read(p)
		r.offset += int64(n)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case <-idle:
			return 0, io.EOF
		case <-poll.C:
			if r.gone() {
				return 0, io.EOF
			}
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return 0, io.EOF
			}
			// An unlinked file that is still open only reports a
			// change of attributes.
			if ev.Has(fsnotify.Chmod) && r.gone() {
				return 0, io.EOF
			}
			if ev.Has(fsnotify.Write) {
				if err := r.rewindIfTruncated(); err != nil {
					return 0, err
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("watching log: %w", err)
		}
	}
}

func (r *Reader) gone() bool {
	_, err := os.Stat(r.path)
	return errors.Is(err, os.ErrNotExist)
}

// rewindIfTruncated restarts from the top when the file shrank, which is
// how log rotation by truncation looks.
func (r *Reader) rewindIfTruncated() error {
	info, err := r.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= r.offset {
		return nil
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r.offset = 0
	return nil
}

// Close releases the file and the watcher.
func (r *Reader) Close() error {
	return errors.Join(r.watcher.Close(), r.file.Close())
}
