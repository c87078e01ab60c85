package embedcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with embedcache-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds the cache file path to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, key string, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"key", key,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"key", key,
			"dimension", dimension,
		)
	}
}

// LogGet logs a get operation.
func (l *Logger) LogGet(ctx context.Context, key string, cacheHit bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get failed",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get completed",
			"key", key,
			"cache_hit", cacheHit,
		)
	}
}

// LogFindSimilar logs a similarity search.
func (l *Logger) LogFindSimilar(ctx context.Context, threshold float32, scanned int, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "similarity search failed",
			"threshold", threshold,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "similarity search completed",
			"threshold", threshold,
			"scanned", scanned,
			"found", found,
		)
	}
}

// LogRecovery logs an index rebuild from the record log.
func (l *Logger) LogRecovery(ctx context.Context, recordsReplayed int, truncatedBytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index rebuild failed",
			"records_replayed", recordsReplayed,
			"error", err,
		)
	} else if truncatedBytes > 0 {
		l.WarnContext(ctx, "index rebuild dropped truncated tail",
			"records_replayed", recordsReplayed,
			"truncated_bytes", truncatedBytes,
		)
	} else {
		l.InfoContext(ctx, "index rebuild completed",
			"records_replayed", recordsReplayed,
		)
	}
}

// LogSnapshot logs an index snapshot write on close.
func (l *Logger) LogSnapshot(ctx context.Context, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index snapshot failed",
			"entries", entries,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index snapshot saved",
			"entries", entries,
		)
	}
}

// LogArchive logs an archive upload or restore.
func (l *Logger) LogArchive(ctx context.Context, op, name string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "archive operation failed",
			"op", op,
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "archive operation completed",
			"op", op,
			"name", name,
			"bytes", bytes,
		)
	}
}
