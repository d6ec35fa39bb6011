package packrpc

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

type traceIDKey struct{}

var traceIDCounter atomic.Uint64

// Logger wraps slog.Logger with trace ID propagation across a call's
// lifetime.
type Logger struct {
	*slog.Logger
	traceEnabled bool
}

// NewLogger builds a Logger from the module's logging configuration.
func NewLogger(cfg LoggingConfig) *Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger:       slog.New(handler),
		traceEnabled: cfg.TraceEnabled,
	}
}

// WithTraceID stamps ctx with a new trace ID.
func WithTraceID(ctx context.Context) context.Context {
	id := traceIDCounter.Add(1)
	return context.WithValue(ctx, traceIDKey{}, id)
}

// GetTraceID reads the trace ID stamped on ctx, if any.
func GetTraceID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(traceIDKey{}).(uint64)
	return id, ok
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, l.withTrace(ctx, args)...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, l.withTrace(ctx, args)...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, l.withTrace(ctx, args)...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Logger.DebugContext(ctx, msg, l.withTrace(ctx, args)...)
}

func (l *Logger) withTrace(ctx context.Context, args []any) []any {
	if !l.traceEnabled {
		return args
	}
	if traceID, ok := GetTraceID(ctx); ok {
		return append([]any{"trace_id", traceID}, args...)
	}
	return args
}

// WithServer returns a logger with the listening server's ID attached.
func (l *Logger) WithServer(serverID string) *Logger {
	return &Logger{Logger: l.Logger.With("server_id", serverID), traceEnabled: l.traceEnabled}
}

// WithMethod returns a logger with an RPC method name attached.
func (l *Logger) WithMethod(method string) *Logger {
	return &Logger{Logger: l.Logger.With("method", method), traceEnabled: l.traceEnabled}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
