package config

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the slog logger described by l. When File is set, records
// go to both console and a size-rotated file; the returned closer flushes it.
func NewLogger(l LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	out := console
	var closer io.Closer = nopCloser{}
	if l.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAgeDays,
		}
		out = io.MultiWriter(console, rotated)
		closer = rotated
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.JSON {
		return slog.New(slog.NewJSONHandler(out, opts)), closer, nil
	}
	return slog.New(slog.NewTextHandler(out, opts)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
