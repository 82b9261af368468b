// Package observability wires structured logging and Prometheus metrics for
// the worker binaries.
package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/story-enricher/internal/config"
)

// SetupLogger configures a JSON slog logger with redaction and service fields.
// Output is one JSON object per line on stdout.
func SetupLogger(cfg config.Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(NewRedactingHandler(h)).With(
		slog.String("service", service),
		slog.String("env", cfg.AppEnv),
		slog.Int("pid", os.Getpid()),
	)
	return logger
}

func parseLevel(s string) slog.Level {
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
