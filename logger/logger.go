// Package logger defines the leveled, structured logger used across cascade
// services. The default implementation is backed by log/slog; embedding
// applications can supply their own implementation through the WithLogger
// options exposed by every service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the interface that wraps the basic logging methods.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...interface{})
	Info(ctx context.Context, msg string, keysAndValues ...interface{})
	Warn(ctx context.Context, msg string, keysAndValues ...interface{})
	Error(ctx context.Context, msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

// Format selects the slog handler
type Format string

const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

type defaultLogger struct {
	logger *slog.Logger
}

// New creates a slog backed logger writing to stdout
func New(level slog.Level, format Format) Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a slog backed logger writing to w
func NewWithWriter(w io.Writer, level slog.Level, format Format) Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format {
	case JSONFormat:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return &defaultLogger{logger: slog.New(handler)}
}

// Default returns an info level text logger
func Default() Logger {
	return New(slog.LevelInfo, TextFormat)
}

// ParseLevel maps a config level name to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (l *defaultLogger) Debug(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.logger.DebugContext(ctx, msg, keysAndValues...)
}

func (l *defaultLogger) Info(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.logger.InfoContext(ctx, msg, keysAndValues...)
}

func (l *defaultLogger) Warn(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.logger.WarnContext(ctx, msg, keysAndValues...)
}

func (l *defaultLogger) Error(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.logger.ErrorContext(ctx, msg, keysAndValues...)
}

func (l *defaultLogger) With(keysAndValues ...interface{}) Logger {
	return &defaultLogger{logger: l.logger.With(keysAndValues...)}
}

type nopLogger struct{}

// Nop returns a logger that discards everything
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...interface{}) {}
func (nopLogger) Info(context.Context, string, ...interface{})  {}
func (nopLogger) Warn(context.Context, string, ...interface{})  {}
func (nopLogger) Error(context.Context, string, ...interface{}) {}
func (n nopLogger) With(...interface{}) Logger                  { return n }
