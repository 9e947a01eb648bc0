// Package logging provides the structured logger shared by the pipeline and
// its commands, plus context plumbing for run-scoped attribution.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Field is one key/value attribute attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Typed field constructors.
func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field         { return Field{Key: key, Value: value} }

// Logger is the narrow structured-logging contract the rest of the module
// programs against. The default backend is slog.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config selects the output level and encoding for New.
type Config struct {
	Level     string // debug | info | warn | error
	Format    string // json, anything else means text
	AddSource bool
}

// New builds a slog-backed Logger writing to stdout.
func New(cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFrom(cfg.Level),
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return &slogBackend{sl: slog.New(handler)}
}

// NewFromEnv builds a Logger from LOG_LEVEL and LOG_FORMAT. Unset variables
// yield text output at info level.
func NewFromEnv() Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		AddSource: true,
	})
}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noopLogger{} }

type slogBackend struct {
	sl *slog.Logger
}

func (b *slogBackend) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = slog.Any(f.Key, f.Value)
	}
	return &slogBackend{sl: b.sl.With(args...)}
}

func (b *slogBackend) Debug(ctx context.Context, msg string, fields ...Field) {
	b.emit(ctx, slog.LevelDebug, msg, fields)
}

func (b *slogBackend) Info(ctx context.Context, msg string, fields ...Field) {
	b.emit(ctx, slog.LevelInfo, msg, fields)
}

func (b *slogBackend) Warn(ctx context.Context, msg string, fields ...Field) {
	b.emit(ctx, slog.LevelWarn, msg, fields)
}

func (b *slogBackend) Error(ctx context.Context, msg string, fields ...Field) {
	b.emit(ctx, slog.LevelError, msg, fields)
}

// emit skips attribute conversion entirely when the level is filtered out.
func (b *slogBackend) emit(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if !b.sl.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	b.sl.LogAttrs(ctx, level, msg, attrs...)
}

type noopLogger struct{}

func (noopLogger) With(...Field) Logger                    { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func levelFrom(name string) slog.Leveler {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
