package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig holds configuration for the structured logger.
type LogConfig struct {
	Level       string // "debug", "info", "warn", "error"
	Format      string // "text" or "json"
	ServiceName string
	Environment string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// sensitiveKeys are matched case-insensitively as substrings of attribute keys.
var sensitiveKeys = []string{
	"authorization",
	"cookie",
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
}

// InitLogger creates the process logger and installs it as the slog default.
// Every record carries the service name and environment.
func InitLogger(cfg LogConfig) *slog.Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	)

	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config string to a slog level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// WithTraceID returns logger tagged with the trace ID from ctx, if any.
func WithTraceID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
