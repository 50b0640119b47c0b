package incremental

import (
	"maps"
	"slices"
	"time"
)

// ManifestVersion is the current version of the manifest format.
const ManifestVersion = "1"

// Manifest is the persisted build state of the output directory.
// A change of SharedHash invalidates every entry.
type Manifest struct {
	Version     string            `json:"version"`
	GeneratedAt time.Time         `json:"generatedAt"`
	SharedHash  string            `json:"sharedHash"`
	Bundles     map[string]*Entry `json:"bundles"`
}

// NewManifest creates an empty manifest.
func NewManifest(sharedHash string) *Manifest {
	return &Manifest{
		Version:     ManifestVersion,
		GeneratedAt: now(),
		SharedHash:  sharedHash,
		Bundles:     make(map[string]*Entry),
	}
}

// Set adds or replaces the entry for a unit.
func (m *Manifest) Set(unit string, e *Entry) {
	if m == nil || e == nil {
		return
	}
	if m.Bundles == nil {
		m.Bundles = make(map[string]*Entry)
	}
	m.Bundles[unit] = e
}

// Get retrieves the entry for a unit. A nil entry counts as absent.
func (m *Manifest) Get(unit string) (*Entry, bool) {
	if m == nil || m.Bundles == nil {
		return nil, false
	}
	e, ok := m.Bundles[unit]
	return e, ok && e != nil
}

// Units returns the unit names with an entry, sorted.
func (m *Manifest) Units() []string {
	if m == nil {
		return nil
	}
	units := slices.Sorted(maps.Keys(m.Bundles))
	return slices.DeleteFunc(units, func(unit string) bool {
		return m.Bundles[unit] == nil
	})
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Bundles)
}

// now returns the current time at manifest precision.
func now() time.Time {
	return stamp(time.Now())
}

// stamp normalizes a time to UTC milliseconds, the precision of an
// ISO 8601 timestamp as browsers print it.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
