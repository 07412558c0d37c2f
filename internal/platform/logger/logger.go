package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output keeps run logs
// greppable and machine-ingestable by the observability stack.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
