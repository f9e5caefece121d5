// Package logging builds the process slog.Logger.
//
//   - format "text" writes colorized console output via tint
//   - format "json" (default) writes slog JSON
//   - a non-empty File sends output to a rotating lumberjack file instead of stderr
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 20
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// Options selects level, format and destination.
type Options struct {
	Level  string
	Format string
	File   string
}

// New returns a logger and a closer for the underlying sink. When File is
// set but its directory cannot be created, the logger falls back to out and
// the error is returned alongside it.
func New(opts Options, out io.Writer) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)
	file := strings.TrimSpace(opts.File)
	if file == "" {
		return slog.New(newHandler(opts.Format, out, level, true)), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return slog.New(newHandler(opts.Format, out, level, true)), nopCloser{}, err
	}

	writer := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	return slog.New(newHandler(opts.Format, writer, level, false)), writer, nil
}

// ParseLevel maps debug/info/warn/error to slog levels; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, level slog.Level, console bool) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !console,
		})
	}
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
