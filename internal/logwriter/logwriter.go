// Package logwriter appends timestamped lines to a per-daemon log file,
// flushing periodically and on demand. The append-only-file-with-prefix
// idiom follows the teacher's own daemon logger
// (internal/daemon/daemon.go's log.New over an O_APPEND file), generalized
// from one supervisor-wide log to one file per daemon under
// <state-dir>/logs/<safe_path>/<safe_path>.log as spec.md §6 requires.
package logwriter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Writer is a single daemon's append-only log file.
type Writer struct {
	shortName string

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	ticker *time.Ticker
	done   chan struct{}
}

// Open creates (or appends to) the log file for a daemon under dir, which
// should already be <state-dir>/logs/<safe_path>; the file itself is named
// <safe_path>.log per spec.md §6.
func Open(dir, safePath, shortName string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(dir, safePath+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	w := &Writer{
		shortName: shortName,
		file:      f,
		buf:       bufio.NewWriter(f),
		ticker:    time.NewTicker(500 * time.Millisecond),
		done:      make(chan struct{}),
	}
	go w.flushLoop()
	return w, nil
}

func (w *Writer) flushLoop() {
	for {
		select {
		case <-w.ticker.C:
			w.Flush()
		case <-w.done:
			return
		}
	}
}

// WriteLine appends one line, prefixed "YYYY-MM-DD HH:MM:SS <text>", adding
// the daemon's short name only when text doesn't already start with it.
func (w *Writer) WriteLine(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := time.Now().Format(timestampLayout)
	var line string
	if strings.HasPrefix(text, w.shortName) {
		line = fmt.Sprintf("%s %s\n", ts, text)
	} else {
		line = fmt.Sprintf("%s %s %s\n", ts, w.shortName, text)
	}
	_, err := w.buf.WriteString(line)
	return err
}

// Flush forces buffered lines to disk. Called explicitly at every readiness
// notification and at child exit, per spec.md §4.1, so downstream
// wait/logs consumers see the tail without waiting for the 500ms timer.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.buf.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	close(w.done)
	w.ticker.Stop()
	w.Flush()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Path returns the log file's path for a given log root, safe path.
func Path(logRoot, safePath string) string {
	return filepath.Join(logRoot, safePath, safePath+".log")
}
