package watch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
)

// AllUnits is the target for a change that invalidates every unit.
const AllUnits = "*"

// Resolver maps a changed path to the unit it belongs to.
type Resolver struct {
	sourcesDir string
	shared     []string
	ignore     []string
}

// NewResolver creates a resolver for units under sourcesDir and the given
// shared inputs (directories or files). Paths matching an ignore glob,
// relative to their unit or shared directory, resolve to nothing.
func NewResolver(sourcesDir string, shared, ignore []string) *Resolver {
	cleaned := make([]string, len(shared))
	for i, s := range shared {
		cleaned[i] = filepath.Clean(s)
	}
	return &Resolver{
		sourcesDir: filepath.Clean(sourcesDir),
		shared:     cleaned,
		ignore:     ignore,
	}
}

// Resolve returns the target a change to path affects: a unit name, or
// AllUnits for shared inputs. ok is false for paths that affect no build.
func (r *Resolver) Resolve(path string) (target string, ok bool) {
	path = filepath.Clean(path)

	for _, s := range r.shared {
		if path == s {
			return AllUnits, true
		}
		if rel, inside := within(s, path); inside {
			return AllUnits, !r.ignored(rel)
		}
	}

	rel, inside := within(r.sourcesDir, path)
	if !inside {
		return "", false
	}
	unit, rest, _ := strings.Cut(rel, "/")
	if discovery.IsIgnored(unit) {
		return "", false
	}
	if rest != "" && r.ignored(rest) {
		return "", false
	}
	return unit, true
}

func (r *Resolver) ignored(rel string) bool {
	for _, pattern := range r.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// within returns path relative to dir, slash-separated, when path is
// strictly inside dir.
func within(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
