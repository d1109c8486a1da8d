// Package logger configures the process-wide slog logger and carries the
// build id of a pipeline run through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs the default slog logger. Logs go to stderr so that stdout
// stays free for the progress diagnostics of the command-line tools.
func Setup(level string, format string) {
	SetupWriter(os.Stderr, level, format)
}

func SetupWriter(w io.Writer, level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithBuildID tags ctx so that FromContext loggers carry the build id.
func WithBuildID(ctx context.Context, buildID string) context.Context {
	return context.WithValue(ctx, contextKey{}, buildID)
}

func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if buildID, ok := ctx.Value(contextKey{}).(string); ok {
		logger = logger.With("build_id", buildID)
	}
	return logger
}

func parseLevel(level string) slog.Level {
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
