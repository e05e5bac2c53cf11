package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// parseLevel maps a config level name onto slog. Unknown names mean warn.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// newLogger builds the JSON logger on stderr. When file is set, records are
// also appended there. The returned closer releases the file.
func newLogger(stderr io.Writer, level, file string) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	closer := func() {}
	w := stderr

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
			return slog.New(slog.NewJSONHandler(stderr, opts)), closer, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return slog.New(slog.NewJSONHandler(stderr, opts)), closer, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(stderr, f)
		closer = func() { _ = f.Close() }
	}

	return slog.New(slog.NewJSONHandler(w, opts)), closer, nil
}
