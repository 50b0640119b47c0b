// Package discovery enumerates build units under a source root.
//
// # Unit Rules
//
// A unit is an immediate subdirectory of the source root that:
//  1. does not start with "_" (templates, scratch) or "." (hidden), and
//  2. contains the entry file at the configured relative path.
//
// Discovery is DETERMINISTIC: the same directory contents always produce the
// same units in the same (name-sorted) order. Nothing is cached between
// calls; callers thread the returned slice through the pipeline.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/albertocavalcante/widgetkit/internal/log"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// ErrSourceRootMissing is returned when the source root does not exist.
// This is the one case where "no units" is a misconfiguration.
var ErrSourceRootMissing = errors.New("source root does not exist")

// IgnoredPrefixes are directory name prefixes that never form units.
var IgnoredPrefixes = []string{"_", "."}

// Unit is one independently bundlable source tree.
type Unit struct {
	// Name is the directory name; unique within the source root.
	Name string `json:"name"`
	// SourcePath is the unit's root directory.
	SourcePath string `json:"sourcePath"`
	// EntryPath is the mandatory entry file.
	EntryPath string `json:"entryPath"`
	// GlobalSymbol is the global the compiled bundle exposes.
	GlobalSymbol string `json:"globalSymbol"`
}

// Options configures Discover.
type Options struct {
	// Entry is the entry file path relative to each unit directory.
	Entry string
	// Symbols overrides the derived global symbol per unit name.
	Symbols map[string]string
}

// OptionsFromConfig returns the discovery options in cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{Entry: cfg.Units.Entry, Symbols: cfg.Units.Symbols}
}

// Discover scans the immediate subdirectories of root and returns the
// valid units sorted by name. It fails only when root itself is missing.
func Discover(root string, opts Options) ([]Unit, error) {
	logger := log.Component("discovery")

	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceRootMissing, root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceRootMissing, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read source root: %w", err)
	}

	var units []Unit
	for _, e := range entries {
		name := e.Name()
		if IsIgnored(name) {
			logger.Debug("skipping ignored entry", "name", name)
			continue
		}
		// os.Stat so symlinked unit directories count.
		dir := filepath.Join(root, name)
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}

		entry := filepath.Join(dir, filepath.FromSlash(opts.Entry))
		if st, err := os.Stat(entry); err != nil || st.IsDir() {
			logger.Debug("skipping directory without entry file", "name", name, "entry", opts.Entry)
			continue
		}

		units = append(units, Unit{
			Name:         name,
			SourcePath:   dir,
			EntryPath:    entry,
			GlobalSymbol: GlobalSymbol(name, opts.Symbols),
		})
	}

	slices.SortFunc(units, func(a, b Unit) int {
		return strings.Compare(a.Name, b.Name)
	})

	logger.Info("discovered units", "root", root, "count", len(units))
	return units, nil
}

// IsIgnored reports whether a directory name is excluded from discovery.
func IsIgnored(name string) bool {
	for _, prefix := range IgnoredPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Names returns the unit names in order.
func Names(units []Unit) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}
	return names
}

// Find returns the unit with the given name.
func Find(units []Unit, name string) (Unit, bool) {
	for _, u := range units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// GlobalSymbol derives the global symbol for a unit name: an explicit
// override wins, then the legacy "widget" -> "NextWidget" mapping that
// previously shipped bundles depend on, otherwise the PascalCase of the
// kebab/snake name.
func GlobalSymbol(name string, overrides map[string]string) string {
	if sym, ok := overrides[name]; ok && sym != "" {
		return sym
	}
	if name == config.LegacyUnitName {
		return config.LegacyGlobalSymbol
	}
	return PascalCase(name)
}

// PascalCase converts "my-widget", "my_widget" or "my widget" to "MyWidget".
// A leading digit is prefixed with "_" so the result is a valid identifier.
func PascalCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || unicode.IsSpace(r)
	})

	var sb strings.Builder
	for _, p := range parts {
		runes := []rune(p)
		sb.WriteRune(unicode.ToUpper(runes[0]))
		sb.WriteString(string(runes[1:]))
	}

	out := sb.String()
	if out != "" && unicode.IsDigit([]rune(out)[0]) {
		out = "_" + out
	}
	return out
}
