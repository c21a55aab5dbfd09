// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries the
// refresh-cycle id through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey string

const cycleIDKey ctxKey = "cycle_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps LOG_LEVEL values (debug, info, warn, error) to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}

// WithCycleID stores a refresh-cycle id in the context.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// CycleID extracts the cycle id from context. Returns "" if not set.
func CycleID(ctx context.Context) string {
	if v, ok := ctx.Value(cycleIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateCycleID creates a cycle id from the cycle start time.
// Format: "cycle-{unixNano}".
func GenerateCycleID(ts time.Time) string {
	return fmt.Sprintf("cycle-%d", ts.UnixNano())
}

// LogWithCycle returns slog attributes including the cycle id from context.
// Usage: slog.Info("msg", logger.LogWithCycle(ctx)...)
func LogWithCycle(ctx context.Context) []any {
	id := CycleID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("cycle_id", id)}
}
