package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 300 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// Builder runs a build. *orchestrator.Orchestrator implements it.
type Builder interface {
	Discover() ([]discovery.Unit, error)
	Run(ctx context.Context, opts orchestrator.Options) (*orchestrator.Report, error)
}

// Config configures the watcher.
type Config struct {
	SourcesDir string
	// Shared lists shared directories and build-config files.
	Shared []string
	// Ignore lists doublestar globs, relative to a unit or shared
	// directory, whose changes never trigger a build.
	Ignore   []string
	Debounce time.Duration
	// InitialBuild builds stale units before waiting for changes.
	InitialBuild bool
	Verbose      bool
	NoColor      bool
	JSON         bool
	Writer       io.Writer
}

// ConfigFromConfig returns the watch settings cfg describes.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{
		SourcesDir:   cfg.SourcesDir(),
		Shared:       cfg.SharedInputs(),
		Ignore:       cfg.Hash.Ignore,
		Debounce:     time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		InitialBuild: true,
	}
}

// Watcher watches unit sources and shared inputs and rebuilds the units a
// batch of changes made stale.
type Watcher struct {
	config    Config
	builder   Builder
	resolver  *Resolver
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger

	// ctx is the context of the running session, used by debounced builds.
	ctx context.Context

	// buildMu prevents concurrent builds.
	buildMu sync.Mutex
}

// New creates a watcher that rebuilds through builder.
func New(cfg Config, builder Builder) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := NewLogger(LoggerConfig{
		Writer:  cfg.Writer,
		Verbose: cfg.Verbose,
		NoColor: cfg.NoColor,
		JSON:    cfg.JSON,
	})

	return &Watcher{
		config:    cfg,
		builder:   builder,
		resolver:  NewResolver(cfg.SourcesDir, cfg.Shared, cfg.Ignore),
		fsWatcher: fsWatcher,
		logger:    logger,
		ctx:       context.Background(),
	}, nil
}

// Logger returns the watcher's output logger.
func (w *Watcher) Logger() *Logger {
	return w.logger
}

// Run starts the watch loop. It blocks until the context is cancelled.
// Build failures are reported and the loop keeps running.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx

	window := w.config.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}
	w.debouncer = NewDebouncer(window, w.handleBatch)
	defer w.debouncer.Stop()

	units, err := w.builder.Discover()
	if err != nil {
		return err
	}

	roots, err := w.addRoots()
	if err != nil {
		return err
	}
	w.logger.Ready(discovery.Names(units), roots)

	if w.config.InitialBuild {
		w.build([]string{AllUnits})
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRoots watches the source root and shared directories recursively, and
// the parent directory of every shared file. Missing shared inputs are
// skipped; they contribute nothing to the shared digest either.
func (w *Watcher) addRoots() ([]string, error) {
	var roots []string

	if err := w.addRecursive(w.config.SourcesDir); err != nil {
		return nil, fmt.Errorf("failed to watch sources: %w", err)
	}
	roots = append(roots, w.config.SourcesDir)

	for _, input := range w.config.Shared {
		info, err := os.Stat(input)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if err := w.addRecursive(input); err != nil {
				return nil, fmt.Errorf("failed to watch shared directory: %w", err)
			}
			roots = append(roots, input)
			continue
		}

		parent := filepath.Dir(input)
		if slices.Contains(roots, parent) {
			continue
		}
		if err := w.fsWatcher.Add(parent); err != nil {
			return nil, w.watchError(parent, err)
		}
		roots = append(roots, parent)
	}

	return roots, nil
}

// addRecursive adds a directory and all subdirectories to the watcher,
// skipping directories whose changes resolve to no target.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != root {
			if _, ok := w.resolver.Resolve(path); !ok {
				return filepath.SkipDir
			}
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return w.watchError(path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
}

func (w *Watcher) watchError(path string, err error) error {
	if isWatchLimitError(err) {
		return fmt.Errorf("%w for %s: %w\n"+
			"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
	}
	return fmt.Errorf("failed to watch %s: %w", path, err)
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	target, ok := w.resolver.Resolve(path)
	if !ok {
		return
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
		// Files created before the new directory is watched produce no
		// events; the build rescans the unit, so only the watch is needed.
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
		}
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		change = ChangeDeleted
	default:
		return // chmod
	}

	w.logger.FileChanged(path, change, target)
	w.debouncer.Add(target)
}

// handleBatch is called when the debouncer flushes.
func (w *Watcher) handleBatch(targets []string) {
	if len(targets) == 0 {
		return
	}
	if slices.Contains(targets, AllUnits) {
		targets = []string{AllUnits}
	}
	slices.Sort(targets)
	w.build(targets)
}

// build runs a changed-mode build. The change detector decides what is
// stale from content digests, so a batch whose edits were reverted builds
// nothing and a unit whose previous build failed is retried.
func (w *Watcher) build(targets []string) {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}

	w.logger.Building(targets)

	report, err := w.builder.Run(w.ctx, orchestrator.Options{Mode: orchestrator.ModeChanged})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Error(err)
		return
	}
	w.logger.Built(report)
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
