package observability

import (
	"context"
	"log/slog"
)

// LogContext holds structured logging context information carried through a run.
type LogContext struct {
	RunID  string
	Stage  string
	ItemID string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	lc := extractLogContext(ctx)
	lc.RunID = runID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// WithItemID adds a work item ID to the context.
func WithItemID(ctx context.Context, itemID string) context.Context {
	lc := extractLogContext(ctx)
	lc.ItemID = itemID
	return context.WithValue(ctx, logContextKey, lc)
}

// extractLogContext retrieves or creates a LogContext from the context.
func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// getLogAttrs returns slog attributes from the context's LogContext.
func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := []slog.Attr{}

	if lc.RunID != "" {
		attrs = append(attrs, slog.String("run.id", lc.RunID))
	}
	if lc.Stage != "" {
		attrs = append(attrs, slog.String("stage", lc.Stage))
	}
	if lc.ItemID != "" {
		attrs = append(attrs, slog.String("item.id", lc.ItemID))
	}

	return attrs
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelInfo, msg, allAttrs...)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelWarn, msg, allAttrs...)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	contextAttrs := getLogAttrs(ctx)
	allAttrs := append(contextAttrs, attrs...)
	slog.LogAttrs(ctx, slog.LevelDebug, msg, allAttrs...)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
