package common

import (
	"log/slog"
	"os"
	"sync"
)

// SetupLogger installs the default slog logger writing to stderr in the
// console (text) or json format.
func SetupLogger(level slog.Level, format string) error {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	return nil
}

// OnceLogger emits each distinct warning message only once.
type OnceLogger struct {
	logger *slog.Logger
	seen   map[string]struct{}
	mu     sync.Mutex
}

// NewOnceLogger creates a deduplicating warning logger. A nil logger uses slog.Default().
func NewOnceLogger(logger *slog.Logger) *OnceLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnceLogger{
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Warn logs msg unless it has been logged before. It reports whether the message was emitted.
func (o *OnceLogger) Warn(msg string, args ...any) bool {
	o.mu.Lock()
	_, done := o.seen[msg]
	if !done {
		o.seen[msg] = struct{}{}
	}
	o.mu.Unlock()

	if done {
		return false
	}
	o.logger.Warn(msg, args...)
	return true
}
