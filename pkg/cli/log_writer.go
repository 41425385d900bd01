package cli

import (
	"strings"
	"sync"
)

// LogWriter implements io.Writer and keeps the last lines written for TUI
// display. New lines are announced on a channel without blocking.
type LogWriter struct {
	mu    sync.Mutex
	lines []string
	max   int
	ch    chan string
}

// NewLogWriter creates a log writer keeping at most maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{
		max: max(maxLines, 1),
		ch:  make(chan string, 100),
	}
}

// Write splits p into lines and stores them.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	for _, line := range strings.Split(text, "\n") {
		w.lines = append(w.lines, line)
		select {
		case w.ch <- line:
		default:
		}
	}
	if n := len(w.lines) - w.max; n > 0 {
		w.lines = append(w.lines[:0], w.lines[n:]...)
	}
	w.mu.Unlock()
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

// Channel returns the notification channel for new lines.
func (w *LogWriter) Channel() <-chan string {
	return w.ch
}
