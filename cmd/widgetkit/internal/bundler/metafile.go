package bundler

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Metafile is the subset of the esbuild metafile JSON that widgetkit reads.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile.
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

// MetafileImport represents an import in the metafile.
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// MetafileOutput represents an output file in the metafile.
type MetafileOutput struct {
	Bytes      int    `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
}

// ParseMetafile decodes an esbuild metafile.
func ParseMetafile(data []byte) (*Metafile, error) {
	var m Metafile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return &m, nil
}

// InputPaths returns the bundled source files, sorted. Paths inside
// node_modules are reported once per package directory.
func (m *Metafile) InputPaths() []string {
	if m == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(m.Inputs))
	for p := range m.Inputs {
		seen[collapseNodeModules(filepath.ToSlash(p))] = struct{}{}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// ExternalImports returns the unbundled import paths, sorted and unique.
func (m *Metafile) ExternalImports() []string {
	if m == nil {
		return nil
	}

	var externals []string
	for _, in := range m.Inputs {
		for _, imp := range in.Imports {
			if imp.External && !slices.Contains(externals, imp.Path) {
				externals = append(externals, imp.Path)
			}
		}
	}
	slices.Sort(externals)
	return externals
}

// collapseNodeModules reduces a path inside node_modules to its package root.
func collapseNodeModules(p string) string {
	const marker = "node_modules/"
	i := strings.LastIndex(p, marker)
	if i < 0 {
		return p
	}
	rest := p[i+len(marker):]
	parts := strings.SplitN(rest, "/", 3)
	n := 1
	if strings.HasPrefix(rest, "@") && len(parts) > 1 {
		n = 2
	}
	if len(parts) < n {
		return p
	}
	return p[:i+len(marker)] + strings.Join(parts[:n], "/")
}
