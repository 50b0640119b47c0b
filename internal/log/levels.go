// Package log provides structured logging with verbosity levels for widgetkit.
// It wraps log/slog and follows kubectl/klog -v=N conventions.
package log

import "log/slog"

// LevelTrace is a custom trace level (more verbose than debug).
const LevelTrace = slog.Level(-8)

// Verbosity level constants for documentation and reference.
const (
	VerbosityError = 0 // Errors only (quiet)
	VerbosityWarn  = 1 // + Warnings (manifest degraded, manifest write failed)
	VerbosityInfo  = 2 // + Info (units discovered, units built, summaries)
	VerbosityDebug = 3 // + Debug (digests, bundler arguments, timing)
	VerbosityTrace = 4 // + Trace (every hashed file)
)

// VerbosityToLevel maps -v=N to a slog level.
func VerbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	case v == 3:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// LevelName returns the name for a level, including custom levels.
func LevelName(l slog.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.String()
}
