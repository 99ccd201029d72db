// Package logging is the thin seam between bslive components and the
// process-wide slog logger. The actual handler (formatting, in-memory
// recording, per-package levels) is installed by internal/slogutil's own
// init(); this package just gives components a stable, short import.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/bslive-dev/bslive/internal/slogutil"
)

// With returns a derived logger carrying the given key/value pairs,
// conventionally a component name: logging.With("component", "fswatcher").
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// Since returns recorded log lines newer than t, across all levels.
func Since(t time.Time) []slogutil.Line {
	return slogutil.GlobalRecorder.Since(t)
}

// SinceError returns recorded error-level-or-above log lines newer than t.
func SinceError(t time.Time) []slogutil.Line {
	return slogutil.ErrorRecorder.Since(t)
}

// Clear discards recorded log lines.
func Clear() {
	slogutil.GlobalRecorder.Clear()
	slogutil.ErrorRecorder.Clear()
}

type ctxKey struct{}

// WithContext stashes l on ctx for retrieval by FromContext.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext extracts a logger stashed by WithContext, falling back to the
// default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
