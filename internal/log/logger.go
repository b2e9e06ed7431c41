// Package log owns the process-wide slog logger. Components take a child
// logger from WithComponent and keep it in a field.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	once    sync.Once
	current atomic.Pointer[slog.Logger]
)

// Setup installs a logger writing to stderr. Unknown levels mean INFO and
// any format other than "text" means JSON. Only the first call has effect.
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	once.Do(func() {
		l := slog.New(newHandler(w, ParseLevel(level), format))
		current.Store(l)
		slog.SetDefault(l)
	})
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// ParseLevel maps a level name to a slog level, defaulting to INFO. Plugin
// log entries use the same names.
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

// Get returns the installed logger, installing the default on first use.
func Get() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Setup("info", "json")
	return current.Load()
}

// WithComponent returns a child logger tagged with component=name.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// ForCall returns a child logger for one call across the plugin boundary.
func ForCall(requestID, pluginID, operation string) *slog.Logger {
	return Get().With(
		slog.String("component", "extension"),
		slog.String("request_id", requestID),
		slog.String("plugin", pluginID),
		slog.String("operation", operation),
	)
}
