package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// DefaultPath returns ~/.config/ghost-looper/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "ghost-looper", "debug.log")
}

// ParseLevel maps a config string to a slog level (defaults to info)
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Enable starts logging to path (DefaultPath if empty). The file is truncated.
func Enable(path string, level slog.Level) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true
	logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	logger.Info("=== Debug logging started ===", "cat", "debug")
	return nil
}

// EnableWriter routes logging to w instead of a file
func EnableWriter(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Logger returns the current structured logger. Never nil.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Log writes an info message tagged with a category
func Log(category, format string, args ...any) {
	logAt(slog.LevelInfo, category, format, args...)
}

// Debugf is Log at debug level, for the hot paths (tick, dispatch)
func Debugf(category, format string, args ...any) {
	logAt(slog.LevelDebug, category, format, args...)
}

func logAt(level slog.Level, category, format string, args ...any) {
	mu.Lock()
	l, on := logger, enabled
	mu.Unlock()

	if !on || !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, args...), "cat", category)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
