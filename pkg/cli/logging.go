package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the process logger.
type LogOptions struct {
	// Level is debug, info, warn or error. Defaults to info.
	Level string

	// File, when set, receives a copy of every record and is rotated by
	// size.
	File string

	// JSON selects the JSON handler instead of text.
	JSON bool

	// Stderr defaults to os.Stderr. Set it to io.Discard to log only to
	// File, e.g. while a TUI owns the terminal.
	Stderr io.Writer
}

// ParseLevel parses a level name.
func ParseLevel(s string) (slog.Level, error) {
	var lv slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lv.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lv, nil
}

// SetupLogger builds a logger from opts and installs it as the slog
// default. The returned closer flushes the log file.
func SetupLogger(opts LogOptions) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = os.Stderr
	if opts.Stderr != nil {
		w = opts.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		w = io.MultiWriter(w, lj)
		closer = lj
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
