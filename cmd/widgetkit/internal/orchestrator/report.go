package orchestrator

import (
	"time"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
)

// BuiltUnit describes one bundle written by a run.
type BuiltUnit struct {
	Name         string        `json:"name"`
	GlobalSymbol string        `json:"globalSymbol"`
	BundleFile   string        `json:"bundleFile"`
	Bytes        int64         `json:"bytes"`
	Inputs       int           `json:"inputs"`
	Externals    []string      `json:"externals,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Report is the outcome of a successful run.
type Report struct {
	Mode Mode `json:"mode"`
	// Discovered lists every unit found under the source root.
	Discovered []string `json:"discovered"`
	// Detection is set in changed mode.
	Detection *incremental.Detection `json:"detection,omitempty"`
	// Cleared lists bundle files removed before a full build.
	Cleared []string    `json:"cleared,omitempty"`
	Built   []BuiltUnit `json:"built"`
	// Manifest is the regenerated manifest, nil when the run stopped early
	// or the manifest could not be written.
	Manifest *incremental.Manifest `json:"-"`
	// ManifestErr is a manifest write failure. The run still succeeded.
	ManifestErr error         `json:"-"`
	Duration    time.Duration `json:"duration"`
}

// NothingToDo reports whether the run built nothing because every unit was
// up to date.
func (r *Report) NothingToDo() bool {
	return r != nil && len(r.Built) == 0 && r.Detection != nil && r.Detection.IsEmpty()
}

// BuiltNames returns the names of the units built, in build order.
func (r *Report) BuiltNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Built))
	for i, b := range r.Built {
		names[i] = b.Name
	}
	return names
}

// TotalBytes returns the combined size of the bundles built.
func (r *Report) TotalBytes() int64 {
	if r == nil {
		return 0
	}
	var total int64
	for _, b := range r.Built {
		total += b.Bytes
	}
	return total
}
