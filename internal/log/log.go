package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logger atomic.Pointer[slog.Logger]
	level  = new(slog.LevelVar)
)

func init() {
	// Warnings only until the CLI configures logging, so a degraded manifest
	// is still reported.
	InitWithOutput(VerbosityWarn, "text", os.Stderr)
}

// InitWithOutput configures the global logger: records at or above
// verbosity v are written to w as text or JSON (f). The root command calls
// it with the command's stderr.
func InitWithOutput(v int, f string, w io.Writer) {
	level.Set(VerbosityToLevel(v))

	l := slog.New(NewHandler(HandlerOptions{
		Level:  level,
		Format: f,
		Output: w,
		Color:  useColor(w),
	}))
	logger.Store(l)
	slog.SetDefault(l)
}

// Trace logs at trace level (v=4).
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// Component returns a logger tagged with component name.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}
