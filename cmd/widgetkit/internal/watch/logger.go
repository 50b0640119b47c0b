package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger formats watch session output, as text lines or one JSON object
// per event.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	statsMu sync.Mutex
	stats   Stats
}

// Stats tracks a watch session.
type Stats struct {
	Builds    int
	Bundles   int
	Errors    int
	StartTime time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats: Stats{
			StartTime: time.Now(),
		},
	}
}

// Ready logs that the watcher is running.
func (l *Logger) Ready(units []string, roots []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "ready",
			"units": units,
			"roots": roots,
		})
		return
	}

	l.printf("widgetkit: watching %d units\n", len(units))
	if l.verbose {
		for _, root := range roots {
			l.printf("widgetkit:   %s\n", root)
		}
	}
	l.println("widgetkit: ready")
	l.println()
}

// FileChanged logs a file change that affects target.
func (l *Logger) FileChanged(path string, change ChangeType, target string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"target": target,
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Building logs that a rebuild for targets is starting.
func (l *Logger) Building(targets []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":   "building",
			"targets": targets,
			"time":    time.Now().Format(time.RFC3339),
		})
		return
	}

	switch {
	case len(targets) == 1 && targets[0] == AllUnits:
		l.printf("[%s] shared inputs changed, checking all units...\n", l.timestamp())
	case len(targets) == 1:
		l.printf("[%s] rebuilding %s...\n", l.timestamp(), targets[0])
	default:
		l.printf("[%s] rebuilding %s...\n", l.timestamp(), strings.Join(targets, ", "))
	}
}

// Built logs a finished rebuild.
func (l *Logger) Built(report *orchestrator.Report) {
	l.statsMu.Lock()
	l.stats.Builds++
	l.stats.Bundles += len(report.Built)
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "built",
			"units":    report.BuiltNames(),
			"bytes":    report.TotalBytes(),
			"duration": report.Duration.String(),
			"time":     time.Now().Format(time.RFC3339),
		})
		return
	}

	if len(report.Built) == 0 {
		l.printf("[%s] up to date\n", l.timestamp())
		return
	}

	checkmark := l.colorize("✓", ChangeAdded)
	for _, b := range report.Built {
		l.printf("[%s] %s %s (%s)\n", l.timestamp(), checkmark, b.BundleFile, humanize.Bytes(uint64(b.Bytes)))
	}
	if report.ManifestErr != nil {
		l.printf("[%s] %s manifest not updated: %v\n", l.timestamp(), l.colorize("!", ChangeModified), report.ManifestErr)
	}
}

// Error logs an error. The session keeps running.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.Errors++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"builds":   stats.Builds,
			"bundles":  stats.Bundles,
			"errors":   stats.Errors,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("widgetkit: shutting down (%d builds, %d bundles, %d errors)\n",
		stats.Builds, stats.Bundles, stats.Errors)
}

// Stats returns the current session statistics.
func (l *Logger) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// timestamp returns the current time formatted as HH:MM:SS.
func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m" // green
	case ChangeModified:
		color = "\033[33m" // yellow
	case ChangeDeleted:
		color = "\033[31m" // red
	default:
		return s
	}
	return color + s + "\033[0m"
}

func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf writes to the output, ignoring errors: watch output is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
