// Package orchestrator drives a build: it discovers units, selects the ones
// a mode asks for, compiles them one after another and rewrites the manifest.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/bundler"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
	"github.com/albertocavalcante/widgetkit/internal/log"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// Mode selects which units a run builds.
type Mode string

const (
	// ModeAll clears existing bundles and builds every unit.
	ModeAll Mode = "all"
	// ModeOnly builds the named units and leaves other bundles alone.
	ModeOnly Mode = "only"
	// ModeChanged builds the units the change detector reports.
	ModeChanged Mode = "changed"
	// ModeForce is ModeAll, stated explicitly.
	ModeForce Mode = "force"
)

// Options selects what a run builds.
type Options struct {
	// Mode is the build mode. The zero value is ModeAll.
	Mode Mode
	// Only names the units to build. It is required in ModeOnly and must
	// be empty in every other mode.
	Only []string
}

// mode returns the selected mode with the zero value resolved.
func (o Options) mode() Mode {
	if o.Mode == "" {
		return ModeAll
	}
	return o.Mode
}

// Validate rejects options that no mode can run. Unit names belong to
// ModeOnly alone, and ModeOnly needs at least one non-blank name.
func (o Options) Validate() error {
	switch o.mode() {
	case ModeOnly:
		if len(o.Only) == 0 {
			return ErrEmptySelection
		}
		for _, name := range o.Only {
			if strings.TrimSpace(name) == "" {
				return ErrEmptySelection
			}
		}
	case ModeAll, ModeChanged, ModeForce:
		if len(o.Only) > 0 {
			return ErrConflictingModes
		}
	default:
		return fmt.Errorf("unknown build mode %q", o.Mode)
	}
	return nil
}

// Orchestrator runs builds for one project.
type Orchestrator struct {
	sourcesDir string
	outputDir  string
	discovery  discovery.Options
	tracker    *incremental.Tracker
	compiler   bundler.Compiler
}

// New creates an orchestrator for cfg with an explicit tracker and compiler.
func New(cfg *config.Config, tracker *incremental.Tracker, compiler bundler.Compiler) *Orchestrator {
	return &Orchestrator{
		sourcesDir: cfg.SourcesDir(),
		outputDir:  cfg.OutputDir(),
		discovery:  discovery.OptionsFromConfig(cfg),
		tracker:    tracker,
		compiler:   compiler,
	}
}

// NewFromConfig creates an orchestrator with the tracker and compiler cfg
// describes.
func NewFromConfig(cfg *config.Config) (*Orchestrator, error) {
	tracker, err := incremental.NewTrackerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	compiler, err := bundler.New(cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, tracker, compiler), nil
}

// Tracker returns the orchestrator's change tracker.
func (o *Orchestrator) Tracker() *incremental.Tracker {
	return o.tracker
}

// Discover returns the units under the source root.
func (o *Orchestrator) Discover() ([]discovery.Unit, error) {
	return discovery.Discover(o.sourcesDir, o.discovery)
}

// Run performs one build.
//
// Nothing is written to the output directory until the requested units are
// known to exist. Clearing the bundles also removes the manifest, so a full
// build that fails part way leaves no manifest describing bundles that are
// gone. Otherwise the first compile failure aborts the run and leaves the
// manifest untouched. A manifest that cannot be written is reported in
// Report.ManifestErr and does not fail the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := log.Component("orchestrator")

	units, err := o.Discover()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Mode:       opts.mode(),
		Discovered: discovery.Names(units),
		Built:      []BuiltUnit{},
	}
	logger.Debug("starting build", "mode", report.Mode, "units", len(units))

	var selected []discovery.Unit
	switch report.Mode {
	case ModeOnly:
		selected, err = selectNamed(units, opts.Only)
		if err != nil {
			return nil, err
		}

	case ModeChanged:
		report.Detection = o.tracker.Detect(units)
		if report.Detection.IsEmpty() {
			logger.Info("nothing to do", "reason", report.Detection.Reason)
			report.Duration = time.Since(start)
			return report, nil
		}
		for _, u := range units {
			if report.Detection.Contains(u.Name) {
				selected = append(selected, u)
			}
		}

	default:
		report.Cleared, err = o.clearBundles()
		if err != nil {
			return nil, err
		}
		if err := o.tracker.Store().Clear(); err != nil {
			return nil, err
		}
		selected = units
	}

	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, u := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		built, err := o.build(ctx, u)
		if err != nil {
			return nil, err
		}
		report.Built = append(report.Built, *built)
	}

	m, err := o.tracker.Regenerate(units)
	if err != nil {
		logger.Warn("manifest not updated", "error", err)
		report.ManifestErr = err
	} else {
		report.Manifest = m
	}

	report.Duration = time.Since(start)
	logger.Info("build finished", "mode", report.Mode, "built", len(report.Built), "duration", report.Duration)
	return report, nil
}

// build compiles one unit.
func (o *Orchestrator) build(ctx context.Context, u discovery.Unit) (*BuiltUnit, error) {
	logger := log.Component("orchestrator")
	logger.Info("building unit", "unit", u.Name, "symbol", u.GlobalSymbol)

	meta, err := o.compiler.Compile(ctx, bundler.Request{
		Unit:         u.Name,
		EntryPath:    u.EntryPath,
		OutputPath:   o.tracker.BundlePath(u.Name),
		GlobalSymbol: u.GlobalSymbol,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &CompileError{Unit: u.Name, Err: err}
	}

	built := &BuiltUnit{
		Name:         u.Name,
		GlobalSymbol: u.GlobalSymbol,
		BundleFile:   o.tracker.BundleFile(u.Name),
	}
	if meta != nil {
		built.Bytes = meta.Bytes
		built.Inputs = len(meta.Inputs)
		built.Externals = meta.Externals
		built.Duration = meta.Duration
		for _, w := range meta.Warnings {
			built.Warnings = append(built.Warnings, w.String())
			logger.Warn("bundler warning", "unit", u.Name, "message", w.String())
		}
	}
	return built, nil
}

// Clean removes every bundle, source map and the manifest from the output
// directory. Other files are left alone.
func (o *Orchestrator) Clean() ([]string, error) {
	cleared, err := o.clearBundles()
	if err != nil {
		return nil, err
	}

	store := o.tracker.Store()
	if store.Exists() {
		if err := store.Clear(); err != nil {
			return cleared, fmt.Errorf("failed to remove manifest: %w", err)
		}
		cleared = append(cleared, filepath.Base(store.Path()))
	}
	return cleared, nil
}

// clearBundles removes every bundle and source map from the output
// directory. The manifest is left to the caller.
func (o *Orchestrator) clearBundles() ([]string, error) {
	pattern := filepath.Join(o.outputDir, "*."+o.tracker.Extension())
	bundles, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	sourcemaps, _ := filepath.Glob(pattern + ".map")

	var cleared []string
	for _, path := range slices.Concat(bundles, sourcemaps) {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", path, err)
		}
		cleared = append(cleared, filepath.Base(path))
	}
	slices.Sort(cleared)

	if len(cleared) > 0 {
		log.Component("orchestrator").Debug("cleared bundles", "files", cleared)
	}
	return cleared, nil
}

// selectNamed returns the units named in names, in discovery order. Every
// unknown name is reported at once.
func selectNamed(units []discovery.Unit, names []string) ([]discovery.Unit, error) {
	var unknown []string
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := discovery.Find(units, name); !ok {
			if !slices.Contains(unknown, name) {
				unknown = append(unknown, name)
			}
			continue
		}
		want[name] = true
	}
	if len(unknown) > 0 {
		return nil, &UnknownUnitsError{Names: unknown, Available: discovery.Names(units)}
	}

	var selected []discovery.Unit
	for _, u := range units {
		if want[u.Name] {
			selected = append(selected, u)
		}
	}
	return selected, nil
}
