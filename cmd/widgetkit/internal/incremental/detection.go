package incremental

import (
	"slices"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
)

// Detection reasons.
const (
	ReasonNoManifest   = "no manifest"
	ReasonSharedChange = "shared dependency change"
	ReasonSourceChange = "source change"
	ReasonUpToDate     = "up to date"
)

// Detection is the set of units that need rebuilding and why.
type Detection struct {
	Changed       []string `json:"changed"`
	Reason        string   `json:"reason"`
	SharedChanged bool     `json:"sharedChanged"`
}

// IsEmpty returns true if no unit needs rebuilding.
func (d *Detection) IsEmpty() bool {
	if d == nil {
		return true
	}
	return len(d.Changed) == 0
}

// Contains reports whether unit needs rebuilding.
func (d *Detection) Contains(unit string) bool {
	if d == nil {
		return false
	}
	_, found := slices.BinarySearch(d.Changed, unit)
	return found
}

// SharedInputs locates the cross-cutting inputs folded into the shared digest.
type SharedInputs struct {
	// Root is the project root; inputs are labelled relative to it.
	Root string
	// Paths are the shared directories and build-config files.
	Paths []string
}

// Digest computes the shared digest with h.
func (s SharedInputs) Digest(h *Hasher) string {
	return h.HashShared(s.Root, s.Paths)
}

// Detect compares the current digests of units against m.
//
// A nil manifest marks every unit changed. A shared digest mismatch marks
// every unit changed even if its own sources are unchanged, since the cost
// of finding which units use a shared file is not worth paying. Otherwise a
// unit is changed when its source digest differs from its entry or it has
// no entry. Entries for units that no longer exist are ignored.
func Detect(h *Hasher, units []discovery.Unit, m *Manifest, shared SharedInputs) *Detection {
	if m == nil {
		return &Detection{
			Changed: sortedNames(units),
			Reason:  ReasonNoManifest,
		}
	}

	if shared.Digest(h) != m.SharedHash {
		return &Detection{
			Changed:       sortedNames(units),
			Reason:        ReasonSharedChange,
			SharedChanged: true,
		}
	}

	changed := []string{}
	for _, u := range units {
		entry, ok := m.Get(u.Name)
		if !ok || entry.SourceHash != h.HashTree(u.SourcePath) {
			changed = append(changed, u.Name)
		}
	}
	slices.Sort(changed)

	reason := ReasonUpToDate
	if len(changed) > 0 {
		reason = ReasonSourceChange
	}
	return &Detection{Changed: changed, Reason: reason}
}

func sortedNames(units []discovery.Unit) []string {
	names := discovery.Names(units)
	slices.Sort(names)
	return names
}
