// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// tickIDKey is the context key for tick/correlation IDs.
type tickIDKey struct{}

// New creates a new structured JSON logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithTickID returns a new context carrying the given tick ID.
func WithTickID(ctx context.Context, tickID string) context.Context {
	return context.WithValue(ctx, tickIDKey{}, tickID)
}

// TickIDFromContext extracts the tick ID from the context.
func TickIDFromContext(ctx context.Context) string {
	if v := ctx.Value(tickIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// FromContext returns a logger with context fields (tick ID, etc.) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if tickID := TickIDFromContext(ctx); tickID != "" {
		return base.With("tick_id", tickID)
	}
	return base
}
