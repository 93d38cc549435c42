package vecfetch

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecfetch-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithSource adds the remote source name to the logger.
func (l *Logger) WithSource(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("source", name),
	}
}

// WithLeaf adds a leaf index field to the logger.
func (l *Logger) WithLeaf(leaf int) *Logger {
	return &Logger{
		Logger: l.Logger.With("leaf", leaf),
	}
}

// WithNode adds a merkle node index field to the logger.
func (l *Logger) WithNode(node int) *Logger {
	return &Logger{
		Logger: l.Logger.With("node", node),
	}
}

// LogOpen logs channel initialization.
func (l *Logger) LogOpen(ctx context.Context, path string, size int64, validLeaves, totalLeaves int, resumed bool) {
	l.InfoContext(ctx, "channel opened",
		"cache", path,
		"size", size,
		"valid_leaves", validLeaves,
		"total_leaves", totalLeaves,
		"resumed", resumed,
	)
}

// LogDiscard logs a cache/state pair that could not be reused.
func (l *Logger) LogDiscard(ctx context.Context, path string, reason error) {
	l.WarnContext(ctx, "discarding cache state",
		"cache", path,
		"reason", reason,
	)
}

// LogFetch logs a range fetch.
func (l *Logger) LogFetch(ctx context.Context, node int, offset, length int64, err error) {
	nl := l.WithNode(node)
	if err != nil {
		nl.ErrorContext(ctx, "fetch failed", "offset", offset, "length", length, "error", err)
		return
	}
	nl.DebugContext(ctx, "fetch completed", "offset", offset, "length", length)
}

// LogVerifyFailed logs a leaf whose downloaded bytes did not verify.
func (l *Logger) LogVerifyFailed(ctx context.Context, leaf, node int) {
	l.WithLeaf(leaf).WithNode(node).WarnContext(ctx, "leaf failed verification")
}

// LogPrebuffer logs the outcome of a prebuffer request.
func (l *Logger) LogPrebuffer(ctx context.Context, offset, length int64, leaves int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "prebuffer failed",
			"offset", offset,
			"length", length,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "prebuffer completed",
			"offset", offset,
			"length", length,
			"leaves", leaves,
		)
	}
}

// LogClose logs channel shutdown.
func (l *Logger) LogClose(ctx context.Context, path string, validLeaves int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "channel close failed",
			"cache", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "channel closed",
			"cache", path,
			"valid_leaves", validLeaves,
		)
	}
}
