package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Params controls where and how log records are written.
type Params struct {
	Level      string
	Format     string // "text" or "json"
	File       string // rotated log file; empty writes to stdout only
	ToStdout   bool   // also write to stdout when File is set
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// New builds a slog.Logger from p. The returned closer releases the log
// file, if any.
func New(p Params) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(p.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if p.File != "" {
		name := p.File
		if !strings.HasSuffix(name, ".log") {
			name += ".log"
		}
		maxSize := p.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		lj := &lumberjack.Logger{
			Filename:   name,
			MaxSize:    maxSize, // megabytes
			MaxBackups: p.MaxBackups,
			LocalTime:  false,
			Compress:   p.Compress,
		}
		closer = lj
		out = lj
		if p.ToStdout {
			out = io.MultiWriter(os.Stdout, lj)
		}
	}

	return slog.New(newHandler(out, p.Format, level)), closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name to a slog.Level. An empty name means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
