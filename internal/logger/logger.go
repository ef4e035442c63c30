// Package logger provides package-level structured logging on top of log/slog.
//
// The level is read from LOG_LEVEL at init (debug, info, warn, error) and can
// be changed at runtime with SetLevel or SetVerbose. A match id stored in a
// context with WithMatchID is attached to every *Context call.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type contextKey string

// ContextKeyMatchID identifies the match a log line belongs to.
const ContextKeyMatchID contextKey = "match_id"

var current atomic.Pointer[slog.Logger]

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	SetLevel(level)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// SetLevel replaces the global logger with a text handler at level.
func SetLevel(level slog.Level) {
	SetOutput(os.Stderr, level)
}

// SetOutput replaces the global logger with a text handler writing to w.
func SetOutput(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	current.Store(slog.New(handler))
}

// SetVerbose switches between debug and info.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Default returns the current global logger.
func Default() *slog.Logger {
	return current.Load()
}

// With returns a child of the global logger carrying args.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// WithMatchID returns a context whose log lines carry matchID.
func WithMatchID(ctx context.Context, matchID string) context.Context {
	return context.WithValue(ctx, ContextKeyMatchID, matchID)
}

func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, withContext(ctx, args)...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, withContext(ctx, args)...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, withContext(ctx, args)...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, withContext(ctx, args)...)
}

func withContext(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	matchID, ok := ctx.Value(ContextKeyMatchID).(string)
	if !ok || matchID == "" {
		return args
	}
	return append([]any{string(ContextKeyMatchID), matchID}, args...)
}
