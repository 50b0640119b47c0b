package log

import (
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// HandlerOptions configures the log handler.
type HandlerOptions struct {
	Level     slog.Leveler
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	// Color styles level names in text output. JSON output is never styled.
	Color bool
}

// levelStyles color level names on a terminal.
var levelStyles = map[slog.Level]lipgloss.Style{
	slog.LevelError: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
	slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
	slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
	LevelTrace:      lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
}

// NewHandler creates appropriate handler based on options.
// Output defaults to stderr: stdout is reserved for machine-readable
// command output such as `widgetkit detect`.
func NewHandler(opts HandlerOptions) slog.Handler {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: replaceLevelNames,
	}

	if opts.Format == "json" {
		return slog.NewJSONHandler(opts.Output, handlerOpts)
	}
	if opts.Color {
		handlerOpts.ReplaceAttr = colorLevelNames
	}
	return slog.NewTextHandler(opts.Output, handlerOpts)
}

// replaceLevelNames customizes level display (TRACE, etc.).
func replaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok {
			a.Value = slog.StringValue(LevelName(level))
		}
	}
	return a
}

// colorLevelNames is replaceLevelNames with styled level names.
func colorLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	name := LevelName(level)
	if style, ok := levelStyles[level]; ok {
		name = style.Render(name)
	}
	a.Value = slog.StringValue(name)
	return a
}

// useColor reports whether w is a terminal that accepts colors.
// NO_COLOR (https://no-color.org) disables them.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
