package incremental

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/internal/log"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// UnitState is the freshness of one unit's bundle.
type UnitState string

const (
	// StateFresh means the bundle matches the current sources.
	StateFresh UnitState = "fresh"
	// StateStale means the unit was built before but its inputs changed.
	StateStale UnitState = "stale"
	// StateNew means the unit has never been built.
	StateNew UnitState = "new"
)

// UnitStatus describes one unit for status reporting.
type UnitStatus struct {
	Name         string    `json:"name"`
	GlobalSymbol string    `json:"globalSymbol"`
	State        UnitState `json:"state"`
	Entry        *Entry    `json:"entry,omitempty"`
}

// Tracker ties a Hasher and a Store to a project layout.
type Tracker struct {
	hasher    *Hasher
	store     Store
	shared    SharedInputs
	outputDir string
	extension string
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	Hasher    *Hasher
	Store     Store
	Shared    SharedInputs
	OutputDir string
	// Extension is the bundle file extension without the dot.
	Extension string
}

// NewTracker creates a tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	ext := opts.Extension
	if ext == "" {
		ext = "js"
	}
	return &Tracker{
		hasher:    opts.Hasher,
		store:     opts.Store,
		shared:    opts.Shared,
		outputDir: opts.OutputDir,
		extension: ext,
	}
}

// NewTrackerFromConfig creates a tracker for the project described by cfg.
func NewTrackerFromConfig(cfg *config.Config) (*Tracker, error) {
	h, err := NewHasherFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewTracker(TrackerOptions{
		Hasher:    h,
		Store:     NewJSONStore(cfg.ManifestPath()),
		Shared:    SharedInputs{Root: cfg.Root, Paths: cfg.SharedInputs()},
		OutputDir: cfg.OutputDir(),
		Extension: cfg.Units.Extension,
	}), nil
}

// Hasher returns the tracker's hasher.
func (t *Tracker) Hasher() *Hasher {
	return t.hasher
}

// Store returns the tracker's manifest store.
func (t *Tracker) Store() Store {
	return t.store
}

// Extension returns the bundle file extension without the dot.
func (t *Tracker) Extension() string {
	return t.extension
}

// BundleFile returns the bundle file name of a unit.
func (t *Tracker) BundleFile(unit string) string {
	return unit + "." + t.extension
}

// BundlePath returns the absolute bundle path of a unit.
func (t *Tracker) BundlePath(unit string) string {
	return filepath.Join(t.outputDir, t.BundleFile(unit))
}

// SharedDigest computes the current shared digest.
func (t *Tracker) SharedDigest() string {
	return t.shared.Digest(t.hasher)
}

// LoadManifest loads the stored manifest. A missing, corrupt or
// incompatible manifest yields nil: the manifest is a cache and losing it
// only costs a full rebuild.
func (t *Tracker) LoadManifest() *Manifest {
	m, err := t.store.Load()
	if err != nil {
		logger := log.Component("incremental")
		switch {
		case errors.Is(err, ErrCorruptManifest), errors.Is(err, ErrUnsupportedVersion):
			logger.Warn("ignoring manifest, rebuilding everything", "path", t.store.Path(), "error", err)
		default:
			logger.Warn("cannot read manifest, rebuilding everything", "path", t.store.Path(), "error", err)
		}
		return nil
	}
	return m
}

// Detect loads the manifest and reports which units need rebuilding.
func (t *Tracker) Detect(units []discovery.Unit) *Detection {
	d := Detect(t.hasher, units, t.LoadManifest(), t.shared)
	log.Component("incremental").Debug("detected changes",
		"changed", d.Changed, "reason", d.Reason, "shared_changed", d.SharedChanged)
	return d
}

// BuildManifest computes a manifest from the current state of disk. Every
// unit whose bundle exists gets an entry with its current source digest and
// the bundle's size and modification time; units without a bundle are
// omitted. An untouched bundle therefore keeps an identical entry.
func (t *Tracker) BuildManifest(units []discovery.Unit) *Manifest {
	m := NewManifest(t.SharedDigest())

	for _, u := range units {
		info, err := os.Stat(t.BundlePath(u.Name))
		if err != nil || info.IsDir() {
			log.Trace("no bundle for unit", "unit", u.Name)
			continue
		}
		m.Set(u.Name, &Entry{
			SourceHash: t.hasher.HashTree(u.SourcePath),
			BundleFile: t.BundleFile(u.Name),
			BundleSize: info.Size(),
			BuiltAt:    stamp(info.ModTime()),
		})
	}

	return m
}

// Regenerate rewrites the stored manifest from the current state of disk.
func (t *Tracker) Regenerate(units []discovery.Unit) (*Manifest, error) {
	m := t.BuildManifest(units)
	if err := t.store.Save(m); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}
	log.Component("incremental").Info("manifest written", "path", t.store.Path(), "bundles", m.Len())
	return m, nil
}

// UnitStates reports the freshness of every unit along with the detection
// it was derived from.
func (t *Tracker) UnitStates(units []discovery.Unit) ([]UnitStatus, *Detection) {
	m := t.LoadManifest()
	d := Detect(t.hasher, units, m, t.shared)

	statuses := make([]UnitStatus, 0, len(units))
	for _, u := range units {
		entry, built := m.Get(u.Name)
		state := StateFresh
		switch {
		case !built:
			state = StateNew
		case d.Contains(u.Name):
			state = StateStale
		}
		statuses = append(statuses, UnitStatus{
			Name:         u.Name,
			GlobalSymbol: u.GlobalSymbol,
			State:        state,
			Entry:        entry,
		})
	}
	return statuses, d
}
