// Package observability provides the ambient logging, metrics, and tracing
// stack shared by the worker, scheduler, and admin HTTP surface.
package observability

import (
	"log/slog"
	"os"

	"github.com/taskflowio/ltq/internal/config"
)

// SetupLogger configures a JSON slog logger with a service field, debug
// level when the configured log level asks for it. One info line per task
// at worker startup, one debug line per message processed, warnings for
// reject/retry, errors with trace for crashes.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(slog.String("service", "ltq"))
}
