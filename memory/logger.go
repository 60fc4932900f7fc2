package memory

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with memory-specific helpers so every backend
// logs the same field names.
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
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON lines to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger creates a Logger that writes human-readable lines to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithComponent tags every entry with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// LogSave logs a single record write.
func (l *Logger) LogSave(ctx context.Context, collection, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"collection", collection,
			"id", id,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "save completed",
		"collection", collection,
		"id", id,
	)
}

// LogQuery logs a relevance or vector query.
func (l *Logger) LogQuery(ctx context.Context, collection, kind string, scanned, returned int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"collection", collection,
			"kind", kind,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query completed",
		"collection", collection,
		"kind", kind,
		"scanned", scanned,
		"results", returned,
	)
}

// LogRemove logs a record or collection removal.
func (l *Logger) LogRemove(ctx context.Context, collection, id string, removed bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove failed",
			"collection", collection,
			"id", id,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "remove completed",
		"collection", collection,
		"id", id,
		"removed", removed,
	)
}

// LogBatch logs the outcome of a batch save.
func (l *Logger) LogBatch(ctx context.Context, collection string, total, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch save completed with failures",
			"collection", collection,
			"total", total,
			"failed", failed,
			"saved", total-failed,
		)
		return
	}
	l.InfoContext(ctx, "batch save completed",
		"collection", collection,
		"count", total,
	)
}
