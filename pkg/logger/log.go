package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const requestIDKey = "request_id"

var (
	mu            sync.RWMutex
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// Options configures the process logger.
type Options struct {
	Level string // debug, info, warn, error
	// File, when set, sends logs to a size-rotated file instead of a stream.
	File string
	// Stderr keeps stdout free, e.g. when stdout carries the MCP stdio protocol.
	Stderr bool
}

// Setup replaces the default logger. It returns a closer for the log file, if any.
func Setup(opts Options) io.Closer {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if opts.Stderr {
		out = os.Stderr
	}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
		}
		out, closer = lj, lj
	}
	SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})))
	return closer
}

// SetDefault swaps the logger used when the context carries none.
func SetDefault(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// ParseLevel maps a level name onto slog; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type contextKey struct{}

var loggerKey = &contextKey{}

// FromContext returns the logger from context, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// WithContext returns a new context that carries the given logger.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithRequestID returns a new context whose logger includes the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	l := FromContext(ctx).With(requestIDKey, id)
	return WithContext(ctx, l)
}

// Error logs with error level. args are alternating key-value pairs (e.g. "error", err).
func Error(ctx context.Context, message string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, message, args...)
}

// Info logs with info level. args are alternating key-value pairs.
func Info(ctx context.Context, message string, args ...any) {
	FromContext(ctx).InfoContext(ctx, message, args...)
}

// Debug logs with debug level. args are alternating key-value pairs.
func Debug(ctx context.Context, message string, args ...any) {
	FromContext(ctx).DebugContext(ctx, message, args...)
}

// Warn logs with warn level. args are alternating key-value pairs.
func Warn(ctx context.Context, message string, args ...any) {
	FromContext(ctx).WarnContext(ctx, message, args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
