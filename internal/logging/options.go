package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options describes where and how the process logger writes.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Empty means info.
	Level string
	// File enables rotating file output instead of stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// isTerminal is a seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// ParseLevel maps a textual level onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds the process logger. Output to an interactive terminal uses the
// text handler, everything else (pipes, files) gets JSON lines.
func New(opts Options) (*SlogLogger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	ho := &slog.HandlerOptions{Level: level}

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		return NewSlogLogger(slog.New(slog.NewJSONHandler(lj, ho))), lj, nil
	}

	var h slog.Handler
	if isTerminal(int(os.Stdout.Fd())) {
		h = slog.NewTextHandler(os.Stdout, ho)
	} else {
		h = slog.NewJSONHandler(os.Stdout, ho)
	}
	return NewSlogLogger(slog.New(h)), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
